// Command storyforge is the development CLI: offline validation and analysis
// of local documents without a running stack.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/storyforge/storyforge-backend/internal/analysis"
	"github.com/storyforge/storyforge-backend/internal/extract"
	"github.com/storyforge/storyforge-backend/internal/filetype"
	"github.com/storyforge/storyforge-backend/internal/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "storyforge: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "storyforge",
		Short:        "StoryForge document tooling",
		Long:         `StoryForge CLI validates and analyzes documents locally, using the same pipeline the upload API and worker run in production.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newValidateCmd(),
		newAnalyzeCmd(),
	)
	return cmd
}

func newValidateCmd() *cobra.Command {
	var expectedType string
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a document the way the upload endpoint would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := validateFile(args[0], expectedType)
			if err != nil {
				return err
			}
			printJSON(cmd, result)
			if !result.Valid {
				return errors.New(result.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&expectedType, "type", "t", "", "Expected kind (txt, md, docx, epub)")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Validate a document and print its content statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := validateFile(args[0], "")
			if err != nil {
				return err
			}
			if !result.Valid {
				printJSON(cmd, result)
				return errors.New(result.Err)
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text, err := extract.Text(content, result.Kind)
			if err != nil {
				return err
			}
			stats := analysis.Analyze(text, result.Kind)
			printJSON(cmd, map[string]any{
				"kind":     result.Kind,
				"warnings": result.Warnings,
				"stats":    stats,
			})
			return nil
		},
	}
	return cmd
}

func validateFile(path, expectedType string) (*validation.Result, error) {
	var expected filetype.Kind
	if expectedType != "" {
		kind, ok := filetype.ParseKind(expectedType)
		if !ok {
			return nil, fmt.Errorf("unknown kind %q", expectedType)
		}
		expected = kind
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return validation.New().Validate(content, filepath.Base(path), expected), nil
}

func printJSON(cmd *cobra.Command, v any) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
