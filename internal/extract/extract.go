// Package extract converts stored documents into analyzable plain text:
// direct decoding for text kinds, content extraction for ZIP container kinds.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/storyforge/storyforge-backend/internal/filetype"
	"github.com/storyforge/storyforge-backend/internal/validation"
)

const wordDocumentEntry = "word/document.xml"

// Text returns the plain text of a stored document of the given kind.
// Paragraph boundaries in container formats are rendered as blank lines so the
// output counts the same way authored text does.
func Text(content []byte, kind filetype.Kind) (string, error) {
	switch kind {
	case filetype.DOCX:
		return docxText(content)
	case filetype.EPUB:
		return epubText(content)
	default:
		text, _, err := validation.DecodeText(content)
		return text, err
	}
}

// docxText pulls the run text out of the main document part.
func docxText(content []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}
	for _, f := range reader.File {
		if f.Name != wordDocumentEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", wordDocumentEntry, err)
		}
		defer rc.Close()
		return wordprocessingText(rc)
	}
	return "", fmt.Errorf("docx container has no %s", wordDocumentEntry)
}

// wordprocessingText walks the WordprocessingML token stream, keeping the
// character data inside w:t runs and closing each w:p with a blank line.
func wordprocessingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inRun := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", wordDocumentEntry, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inRun = true
			case "tab":
				b.WriteString("\t")
			case "br":
				b.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inRun {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// blockTags close with a paragraph break when flattening EPUB content
// documents.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "blockquote": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// epubText flattens every content document in the container, in archive order.
func epubText(content []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open epub container: %w", err)
	}
	var (
		b    strings.Builder
		docs int
	)
	for _, f := range reader.File {
		if !isContentDocument(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		node, err := html.Parse(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", f.Name, err)
		}
		flatten(node, &b)
		b.WriteString("\n\n")
		docs++
	}
	if docs == 0 {
		return "", fmt.Errorf("epub container has no content documents")
	}
	return strings.TrimSpace(b.String()), nil
}

func isContentDocument(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}

func flatten(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(c, b)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		b.WriteString("\n\n")
	}
}
