// Package dataops implements the protected data-utility operations that run
// behind the wallet gate: CSV validation, CSV cleaning, PDF text extraction,
// and log summarization. The gate treats these as opaque downstream handlers.
package dataops

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table is a parsed CSV: header row plus data rows. Every row is padded or
// truncated to the header width on read, so downstream checks can index
// columns without bounds checks.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ReadTable parses CSV input. Ragged rows are tolerated and normalized to the
// header width.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse csv: input is empty")
	}

	headers := records[0]
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(headers))
		copy(row, rec)
		rows = append(rows, row)
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

// TableFromJSON builds a table from a JSON array of row objects. Column order
// is the first-appearance order of keys across the rows, which a decoded Go
// map cannot preserve, so the raw JSON is walked token by token.
func TableFromJSON(raw []byte) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse rows: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("parse rows: expected a JSON array")
	}

	seen := make(map[string]bool)
	var headers []string
	var records []map[string]any

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse rows: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, fmt.Errorf("parse rows: expected a row object")
		}
		rec := make(map[string]any)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("parse rows: %w", err)
			}
			key := keyTok.(string)
			if !seen[key] {
				seen[key] = true
				headers = append(headers, key)
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("parse rows: %w", err)
			}
			rec[key] = v
		}
		if _, err := dec.Token(); err != nil { // closing '}'
			return nil, fmt.Errorf("parse rows: %w", err)
		}
		records = append(records, rec)
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return nil, fmt.Errorf("parse rows: %w", err)
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := rec[h]; ok {
				row[i] = formatValue(v)
			}
		}
		rows = append(rows, row)
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

// Records converts rows back to JSON-shaped objects.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			rec[h] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

// CSV renders the table back to CSV text.
func (t *Table) CSV() (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(t.Headers); err != nil {
		return "", err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}

func (t *Table) columnIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		// JSON numbers decode as float64; keep integers integral.
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func isEmptyCell(v string) bool {
	return strings.TrimSpace(v) == ""
}
