// Package validation implements upload validation: filename and denylist
// gates, kind classification, and per-kind structural checks.
package validation

import (
	"github.com/storyforge/storyforge-backend/internal/filetype"
)

// Metadata collects the non-fatal findings of every validation step as named
// fields rather than an untyped key/value bag.
type Metadata struct {
	Size         int64  `json:"size"`
	Filename     string `json:"filename"`
	Extension    string `json:"extension"`
	DetectedMIME string `json:"detectedMime,omitempty"`
	Description  string `json:"description,omitempty"`
	MaxSize      int64  `json:"maxSize,omitempty"`
	SHA256       string `json:"sha256,omitempty"`

	// Text kinds only.
	Encoding         string `json:"encoding,omitempty"`
	ContentLength    int    `json:"contentLength,omitempty"`
	HasBinaryContent bool   `json:"hasBinaryContent,omitempty"`

	// ZIP container kinds only.
	ZipEntries int `json:"zipEntries,omitempty"`
}

// Result is the immutable outcome of validating one candidate file.
// Valid implies Kind is set and Err is empty; invalid implies Err is set.
type Result struct {
	Valid    bool          `json:"valid"`
	Kind     filetype.Kind `json:"kind,omitempty"`
	Err      string        `json:"error,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Metadata Metadata      `json:"metadata"`
}

func invalid(msg string, kind filetype.Kind, meta Metadata) *Result {
	return &Result{Valid: false, Kind: kind, Err: msg, Metadata: meta}
}
