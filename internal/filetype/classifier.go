package filetype

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLimit bounds how much of the buffer the MIME detector sees; the first
// kilobyte is enough for every supported format.
const sniffLimit = 1024

// Classification is the outcome of running the three detection signals.
type Classification struct {
	// Candidates holds every kind any signal matched, in registry order.
	Candidates []Kind
	// DetectedMIME is the sniffed MIME type of the buffer.
	DetectedMIME string
}

// Chosen returns the authoritative kind: the first candidate in the fixed
// enumeration order. This is a documented heuristic, not a guarantee —
// ZIP-based kinds are indistinguishable by signature and are reconciled later
// by structural validation.
func (c Classification) Chosen() (Kind, bool) {
	if len(c.Candidates) == 0 {
		return "", false
	}
	return c.Candidates[0], true
}

// Ambiguous reports whether more than one kind matched.
func (c Classification) Ambiguous() bool {
	return len(c.Candidates) > 1
}

// Classifier runs extension, MIME and magic-byte detection against a registry.
type Classifier struct {
	reg Registry
}

// NewClassifier builds a Classifier over the given kind registry.
func NewClassifier(reg Registry) *Classifier {
	return &Classifier{reg: reg}
}

// Classify combines three independent signals over the byte prefix and the
// filename. A signal that overlaps the accumulated candidate set corroborates
// it (intersection): shared generic matches like text/plain for TXT and MD, or
// the ZIP header for DOCX and EPUB, must not manufacture ambiguity when an
// earlier signal already narrowed the kind. A disjoint signal expands the set
// instead, and the resulting ambiguity is surfaced to the caller, never
// resolved here.
func (c *Classifier) Classify(prefix []byte, filename string) Classification {
	if len(prefix) > sniffLimit {
		prefix = prefix[:sniffLimit]
	}
	ext := strings.ToLower(filepath.Ext(filename))
	detected := mimetype.Detect(prefix)

	var acc map[Kind]bool
	for _, signal := range []func(Spec) bool{
		func(s Spec) bool { return matchExtension(s, ext) },
		func(s Spec) bool { return matchMIME(s, detected) },
		func(s Spec) bool { return matchSignature(s, prefix) },
	} {
		matched := make(map[Kind]bool, len(Kinds))
		for _, kind := range Kinds {
			if spec, ok := c.reg[kind]; ok && signal(spec) {
				matched[kind] = true
			}
		}
		acc = combine(acc, matched)
	}

	out := Classification{DetectedMIME: detected.String()}
	for _, kind := range Kinds {
		if acc[kind] {
			out.Candidates = append(out.Candidates, kind)
		}
	}
	return out
}

func combine(acc, matched map[Kind]bool) map[Kind]bool {
	if len(matched) == 0 {
		return acc
	}
	if len(acc) == 0 {
		return matched
	}
	inter := make(map[Kind]bool)
	for kind := range matched {
		if acc[kind] {
			inter[kind] = true
		}
	}
	if len(inter) > 0 {
		return inter
	}
	for kind := range matched {
		acc[kind] = true
	}
	return acc
}

func matchExtension(spec Spec, ext string) bool {
	if ext == "" {
		return false
	}
	for _, e := range spec.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func matchMIME(spec Spec, detected *mimetype.MIME) bool {
	for _, m := range spec.MIMETypes {
		if detected.Is(m) {
			return true
		}
	}
	return false
}

func matchSignature(spec Spec, prefix []byte) bool {
	for _, sig := range spec.Signatures {
		if len(sig) > 0 && bytes.HasPrefix(prefix, sig) {
			return true
		}
	}
	return false
}
