package dataops

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFResult mirrors the extraction response shape. Tables stays empty: table
// extraction is not supported by the text-based extractor.
type PDFResult struct {
	Pages  int      `json:"pages"`
	Text   string   `json:"text"`
	Tables []string `json:"tables"`
}

// ExtractPDFText pulls plain text from every page, best effort: pages that
// fail to decode are skipped rather than failing the whole document.
func ExtractPDFText(data []byte) (result PDFResult, err error) {
	// The pdf package can panic on malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf extraction failed: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PDFResult{}, fmt.Errorf("pdf extraction failed: %w", err)
	}

	result.Pages = reader.NumPage()
	result.Tables = []string{}

	var parts []string
	for i := 1; i <= result.Pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		parts = append(parts, text)
	}
	result.Text = strings.TrimSpace(strings.Join(parts, "\n\n"))
	return result, nil
}
