package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/storyforge/storyforge-backend/internal/filetype"
)

// dangerousExtensions are rejected before any classification happens.
var dangerousExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".pif": true,
	".scr": true, ".vbs": true, ".js": true, ".jar": true, ".app": true,
	".deb": true, ".pkg": true, ".dmg": true, ".rpm": true, ".msi": true,
	".dll": true, ".so": true, ".dylib": true,
}

// dangerousMIMETypes are rejected when the sniffer reports them.
var dangerousMIMETypes = []string{
	"application/x-executable",
	"application/x-msdownload",
	"application/x-msdos-program",
	"application/x-shellscript",
	"application/javascript",
	"text/javascript",
	"application/x-java-archive",
	"application/vnd.microsoft.portable-executable",
	"application/x-mach-binary",
	"application/x-elf",
}

// illegalFilenameChars may not appear anywhere in an uploaded filename.
const illegalFilenameChars = `<>:"|?*` + "\x00"

var reservedStems = buildReservedStems()

func buildReservedStems() map[string]bool {
	stems := map[string]bool{"CON": true, "PRN": true, "AUX": true, "NUL": true}
	for i := 1; i <= 9; i++ {
		stems[fmt.Sprintf("COM%d", i)] = true
		stems[fmt.Sprintf("LPT%d", i)] = true
	}
	return stems
}

// Validator orchestrates the classification and the per-kind structural
// checks. It performs no I/O beyond reading the provided buffer.
type Validator struct {
	reg        filetype.Registry
	classifier *filetype.Classifier
}

// New builds a Validator over the production kind registry.
func New() *Validator {
	return NewWithRegistry(filetype.DefaultRegistry())
}

// NewWithRegistry builds a Validator over a caller-supplied registry.
func NewWithRegistry(reg filetype.Registry) *Validator {
	return &Validator{reg: reg, classifier: filetype.NewClassifier(reg)}
}

// Validate runs the sequential gates over an in-memory upload, short-circuiting
// on the first failure. expected is the empty Kind when the caller has no
// expectation. Validation failures return a structured result, never an error.
func (v *Validator) Validate(content []byte, filename string, expected filetype.Kind) *Result {
	meta := Metadata{
		Size:      int64(len(content)),
		Filename:  filename,
		Extension: strings.ToLower(filepath.Ext(filename)),
	}

	if len(content) == 0 {
		return invalid("empty file content", "", meta)
	}
	if reason := checkFilename(filename); reason != "" {
		return invalid(reason, "", meta)
	}
	if reason := checkDenylist(content, meta.Extension); reason != "" {
		return invalid(reason, "", meta)
	}

	cls := v.classifier.Classify(content, filename)
	meta.DetectedMIME = cls.DetectedMIME
	kind, ok := cls.Chosen()
	if !ok {
		return invalid(fmt.Sprintf("unsupported file type: %s", meta.Extension), "", meta)
	}
	var warnings []string
	if cls.Ambiguous() {
		warnings = append(warnings, fmt.Sprintf("multiple candidate kinds detected: %s", joinKinds(cls.Candidates)))
	}
	if expected != "" && expected != kind {
		return invalid(fmt.Sprintf("file type mismatch: expected %s, detected %s", expected, kind), kind, meta)
	}
	if reason := v.checkSize(content, kind); reason != "" {
		return invalid(reason, kind, meta)
	}

	kind, structWarnings, reason := v.validateStructure(content, kind, &meta)
	if reason != "" {
		return invalid(reason, kind, meta)
	}
	warnings = append(warnings, structWarnings...)

	// A kind switch during ZIP reconciliation can change the applicable limit.
	if reason := v.checkSize(content, kind); reason != "" {
		return invalid(reason, kind, meta)
	}

	spec := v.reg[kind]
	meta.Description = spec.Description
	meta.MaxSize = spec.MaxSize
	sum := sha256.Sum256(content)
	meta.SHA256 = hex.EncodeToString(sum[:])

	return &Result{Valid: true, Kind: kind, Warnings: warnings, Metadata: meta}
}

func checkFilename(filename string) string {
	if filename == "" {
		return "illegal filename: empty"
	}
	if len(filename) > 255 {
		return "illegal filename: longer than 255 characters"
	}
	if strings.ContainsAny(filename, illegalFilenameChars) {
		return "illegal filename: contains forbidden characters"
	}
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if reservedStems[strings.ToUpper(stem)] {
		return fmt.Sprintf("illegal filename: %s is a reserved device name", stem)
	}
	return ""
}

func checkDenylist(content []byte, ext string) string {
	if dangerousExtensions[ext] {
		return fmt.Sprintf("dangerous file type: %s", ext)
	}
	detected := mimetype.Detect(content)
	for _, m := range dangerousMIMETypes {
		if detected.Is(m) {
			return fmt.Sprintf("dangerous file type: %s", detected.String())
		}
	}
	return ""
}

func (v *Validator) checkSize(content []byte, kind filetype.Kind) string {
	spec := v.reg[kind]
	if spec.MaxSize > 0 && int64(len(content)) > spec.MaxSize {
		return fmt.Sprintf("file too large: %d bytes exceeds the %d byte limit for %s", len(content), spec.MaxSize, kind)
	}
	return ""
}

// validateStructure runs the kind-specific structural check. For ZIP kinds a
// failure triggers the sibling container check: the signature cannot tell DOCX
// and EPUB apart, so whichever structural validator succeeds is authoritative.
func (v *Validator) validateStructure(content []byte, kind filetype.Kind, meta *Metadata) (filetype.Kind, []string, string) {
	if kind.IsZIPBased() {
		findings, err := validateContainer(content, kind)
		if err != nil {
			sibling, ok := kind.SiblingZIPKind()
			if ok {
				if siblingFindings, siblingErr := validateContainer(content, sibling); siblingErr == nil {
					warnings := append(siblingFindings.warnings,
						fmt.Sprintf("structural validation overrode detected kind %s with %s", kind, sibling))
					meta.ZipEntries = siblingFindings.entries
					return sibling, warnings, ""
				}
			}
			return kind, nil, err.Error()
		}
		meta.ZipEntries = findings.entries
		return kind, findings.warnings, ""
	}

	text, encoding, err := DecodeText(content)
	if err != nil {
		return kind, nil, err.Error()
	}
	meta.Encoding = encoding
	meta.ContentLength = len([]rune(text))
	var warnings []string
	if encoding == "gbk" {
		warnings = append(warnings, "non-UTF-8 encoding detected (gbk)")
	}
	if strings.ContainsRune(text, 0) {
		meta.HasBinaryContent = true
		warnings = append(warnings, "possible binary content")
	}
	return kind, warnings, ""
}

func joinKinds(kinds []filetype.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
