// Package filetype holds the supported document kind registry and the
// multi-signal classifier used before structural validation.
package filetype

import (
	"strings"
)

// Kind is one of the supported document formats.
type Kind string

const (
	TXT  Kind = "txt"
	MD   Kind = "md"
	DOCX Kind = "docx"
	EPUB Kind = "epub"
)

// Kinds lists every supported kind in the fixed enumeration order used to
// break classification ties.
var Kinds = []Kind{TXT, MD, DOCX, EPUB}

// ParseKind maps a user-supplied string to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case TXT:
		return TXT, true
	case MD:
		return MD, true
	case DOCX:
		return DOCX, true
	case EPUB:
		return EPUB, true
	}
	return "", false
}

// Spec is the static per-kind configuration: how a kind is recognized and how
// large its files may be.
type Spec struct {
	Extensions  []string
	MIMETypes   []string
	Signatures  [][]byte
	MaxSize     int64
	Description string
}

// zipHeader is the ZIP local-file-header shared by DOCX and EPUB containers.
var zipHeader = []byte{'P', 'K', 0x03, 0x04}

// Registry maps kinds to their recognition spec. The table is process-wide
// static configuration; tests construct their own instances to exercise size
// limits without multi-megabyte fixtures.
type Registry map[Kind]Spec

// DefaultRegistry returns the production kind table. TXT and MD carry no
// magic-byte signatures: plain text has none that is reliable.
func DefaultRegistry() Registry {
	return Registry{
		TXT: {
			Extensions:  []string{".txt"},
			MIMETypes:   []string{"text/plain"},
			MaxSize:     50 << 20,
			Description: "plain text document",
		},
		MD: {
			Extensions:  []string{".md", ".markdown"},
			MIMETypes:   []string{"text/markdown", "text/plain"},
			MaxSize:     50 << 20,
			Description: "Markdown document",
		},
		DOCX: {
			Extensions:  []string{".docx"},
			MIMETypes:   []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
			Signatures:  [][]byte{zipHeader},
			MaxSize:     100 << 20,
			Description: "Word document",
		},
		EPUB: {
			Extensions:  []string{".epub"},
			MIMETypes:   []string{"application/epub+zip"},
			Signatures:  [][]byte{zipHeader},
			MaxSize:     200 << 20,
			Description: "EPUB ebook",
		},
	}
}

// IsZIPBased reports whether the kind is a ZIP container format.
func (k Kind) IsZIPBased() bool {
	return k == DOCX || k == EPUB
}

// SiblingZIPKind returns the other ZIP container kind, used when structural
// validation overrides an ambiguous signature match.
func (k Kind) SiblingZIPKind() (Kind, bool) {
	switch k {
	case DOCX:
		return EPUB, true
	case EPUB:
		return DOCX, true
	}
	return "", false
}
