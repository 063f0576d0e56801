package validation

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge-backend/internal/filetype"
)

func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.stored {
			method = zip.Store
		}
		f, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		require.NoError(t, err)
		_, err = f.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type zipEntry struct {
	name    string
	content string
	stored  bool
}

func validDocx(t *testing.T) []byte {
	return buildZip(t, []zipEntry{
		{name: "[Content_Types].xml", content: "<Types/>"},
		{name: "word/document.xml", content: "<w:document/>"},
	})
}

func validEpub(t *testing.T) []byte {
	return buildZip(t, []zipEntry{
		{name: "mimetype", content: "application/epub+zip", stored: true},
		{name: "META-INF/container.xml", content: "<container/>"},
	})
}

func TestValidateEmptyContent(t *testing.T) {
	res := New().Validate(nil, "doc.txt", "")
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "empty")
}

func TestValidateIllegalFilenames(t *testing.T) {
	v := New()
	content := []byte("harmless text")

	for _, name := range []string{
		"bad<file.txt", "bad>file.txt", "bad:file.txt", `bad"file.txt`,
		"bad|file.txt", "bad?file.txt", "bad*file.txt", "bad\x00file.txt",
	} {
		res := v.Validate(content, name, "")
		require.False(t, res.Valid, "filename %q should be rejected", name)
		assert.Contains(t, res.Err, "illegal filename")
	}

	res := v.Validate(content, strings.Repeat("a", 252)+".txt", "")
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "illegal filename")

	for _, name := range []string{"CON.txt", "con.md", "COM3.txt", "lpt9.txt"} {
		res := v.Validate(content, name, "")
		require.False(t, res.Valid, "reserved name %q should be rejected", name)
		assert.Contains(t, res.Err, "reserved")
	}
}

func TestValidateDangerousTypeRejectedRegardlessOfContent(t *testing.T) {
	res := New().Validate([]byte("0123456789"), "evil.exe", "")
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "dangerous file type")
}

func TestValidateUnsupportedType(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}
	res := New().Validate(png, "photo.png", "")
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "unsupported file type")
}

func TestValidateTypeMismatch(t *testing.T) {
	res := New().Validate([]byte("hello world"), "notes.txt", filetype.MD)
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "mismatch")
}

func TestValidateTooLarge(t *testing.T) {
	reg := filetype.DefaultRegistry()
	spec := reg[filetype.TXT]
	spec.MaxSize = 8
	reg[filetype.TXT] = spec

	res := NewWithRegistry(reg).Validate([]byte("this is longer than eight bytes"), "notes.txt", "")
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "too large")
}

func TestValidateMarkdownScenario(t *testing.T) {
	content := []byte("# Title\n\npara one\n\npara two.")
	res := New().Validate(content, "story.md", "")

	require.True(t, res.Valid, "error: %s", res.Err)
	assert.Equal(t, filetype.MD, res.Kind)
	assert.Empty(t, res.Err)
	assert.Equal(t, "utf-8", res.Metadata.Encoding)
	assert.Len(t, res.Metadata.SHA256, 64)
	assert.Equal(t, int64(len(content)), res.Metadata.Size)
}

func TestValidateGBKFallback(t *testing.T) {
	// "中文" encoded as GBK; invalid as UTF-8.
	gbk := []byte{0xD6, 0xD0, 0xCE, 0xC4}
	res := New().Validate(gbk, "notes.txt", "")

	require.True(t, res.Valid, "error: %s", res.Err)
	assert.Equal(t, "gbk", res.Metadata.Encoding)
	assert.Contains(t, strings.Join(res.Warnings, "; "), "gbk")
}

func TestValidateUndecodableText(t *testing.T) {
	// 0xFF is a lead byte neither UTF-8 nor GBK accepts in this sequence.
	res := New().Validate([]byte{0x41, 0xFF, 0xFF, 0xFE, 0x42}, "notes.txt", "")
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "cannot decode")
}

func TestValidateNULByteWarning(t *testing.T) {
	res := New().Validate([]byte("text\x00with nul"), "raw.txt", "")
	require.True(t, res.Valid, "error: %s", res.Err)
	assert.True(t, res.Metadata.HasBinaryContent)
	assert.Contains(t, strings.Join(res.Warnings, "; "), "binary")
}

func TestValidateDocx(t *testing.T) {
	res := New().Validate(validDocx(t), "report.docx", "")
	require.True(t, res.Valid, "error: %s", res.Err)
	assert.Equal(t, filetype.DOCX, res.Kind)
	assert.Equal(t, 2, res.Metadata.ZipEntries)
}

func TestValidateDocxMissingDocumentEntry(t *testing.T) {
	content := buildZip(t, []zipEntry{
		{name: "[Content_Types].xml", content: "<Types/>"},
	})
	res := New().Validate(content, "report.docx", "")
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "missing required file: word/document.xml")
}

func TestValidateDocxNotAZip(t *testing.T) {
	content := append([]byte{'P', 'K', 0x03, 0x04}, []byte("truncated nonsense")...)
	res := New().Validate(content, "report.docx", "")
	require.False(t, res.Valid)
	assert.Contains(t, res.Err, "ZIP")
}

func TestValidateEpub(t *testing.T) {
	res := New().Validate(validEpub(t), "book.epub", "")
	require.True(t, res.Valid, "error: %s", res.Err)
	assert.Equal(t, filetype.EPUB, res.Kind)
	assert.Empty(t, res.Warnings)
}

func TestValidateEpubWrongMimetypeIsWarning(t *testing.T) {
	content := buildZip(t, []zipEntry{
		{name: "mimetype", content: "application/zip", stored: true},
		{name: "META-INF/container.xml", content: "<container/>"},
	})
	res := New().Validate(content, "book.epub", "")
	require.True(t, res.Valid, "error: %s", res.Err)
	assert.Contains(t, strings.Join(res.Warnings, "; "), "mimetype")
}

func TestValidateStructuralOverrideDocxToEpub(t *testing.T) {
	// EPUB content wearing a .docx name: the signature heuristic picks DOCX,
	// the container check disagrees, and the EPUB validator is authoritative.
	res := New().Validate(validEpub(t), "report.docx", "")
	require.True(t, res.Valid, "error: %s", res.Err)
	assert.Equal(t, filetype.EPUB, res.Kind)
	assert.Contains(t, strings.Join(res.Warnings, "; "), "overrode")
}
