package validation

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/storyforge/storyforge-backend/internal/filetype"
)

const epubMediaType = "application/epub+zip"

var requiredEntries = map[filetype.Kind][]string{
	filetype.DOCX: {"[Content_Types].xml", "word/document.xml"},
	filetype.EPUB: {"mimetype", "META-INF/container.xml"},
}

// containerFindings is what structural validation of a ZIP kind reports.
type containerFindings struct {
	entries  int
	warnings []string
}

// validateContainer checks that content is a readable ZIP archive holding the
// entries the kind requires. For EPUB a wrong mimetype body is a warning, not
// a failure.
func validateContainer(content []byte, kind filetype.Kind) (*containerFindings, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("invalid %s file: not a valid ZIP archive", kind)
	}

	names := make(map[string]*zip.File, len(reader.File))
	for _, f := range reader.File {
		names[f.Name] = f
	}
	for _, required := range requiredEntries[kind] {
		if _, ok := names[required]; !ok {
			return nil, fmt.Errorf("invalid %s file, missing required file: %s", kind, required)
		}
	}

	findings := &containerFindings{entries: len(reader.File)}
	if kind == filetype.EPUB {
		if mediaType, err := readEntry(names["mimetype"]); err == nil {
			if strings.TrimSpace(mediaType) != epubMediaType {
				findings.warnings = append(findings.warnings,
					fmt.Sprintf("unexpected EPUB mimetype: %q", strings.TrimSpace(mediaType)))
			}
		}
	}
	return findings, nil
}

func readEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
