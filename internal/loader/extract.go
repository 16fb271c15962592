package loader

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPDF returns one part per non-blank page.
func extractPDF(path string) (parts []extracted, err error) {
	// The pdf package reports malformed objects by panicking.
	defer func() {
		if r := recover(); r != nil {
			parts = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	// Cache fonts across pages so charmaps are parsed once.
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, extracted{text: text, page: i})
	}
	return parts, nil
}

// extractDOCX returns the document body as a single part. Paragraphs and
// tables are separated by newlines.
func extractDOCX(path string) ([]extracted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			sb.WriteString(it.String())
			sb.WriteByte('\n')
		case *docx.Table:
			sb.WriteString(it.String())
			sb.WriteByte('\n')
		}
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []extracted{{text: text}}, nil
}

// extractTXT returns the whole file as a single part. The content must be
// valid UTF-8.
func extractTXT(path string) ([]extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	if len(data) == 0 {
		return nil, nil
	}
	return []extracted{{text: string(data)}}, nil
}
