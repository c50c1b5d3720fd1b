package dataops

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CleanRules selects the cleaning transforms to apply, in the order they are
// declared here. Unmarshal request rules over DefaultCleanRules so absent
// fields keep their defaults.
type CleanRules struct {
	NormalizeColumns   bool                   `json:"normalize_columns"`
	TrimStrings        bool                   `json:"trim_strings"`
	DropEmptyRows      bool                   `json:"drop_empty_rows"`
	DropEmptyColumns   bool                   `json:"drop_empty_columns"`
	DropColumns        []string               `json:"drop_columns"`
	ParseDates         []string               `json:"parse_dates"`
	DateOutputFormat   string                 `json:"date_output_format"` // iso (default) or datetime
	CoerceTypes        map[string]string      `json:"coerce_types"`      // column -> int|float|bool|string
	CapOutliers        map[string]OutlierRule `json:"cap_outliers"`
	DropNulls          bool                   `json:"drop_nulls"`
	DropNullsSubset    []string               `json:"drop_nulls_subset"`
	Deduplicate        bool                   `json:"deduplicate"`
	DedupeSubset       []string               `json:"dedupe_subset"`
	Rename             map[string]string      `json:"rename"`
	RemoveNegativeRows bool                   `json:"remove_negative_rows"`
	NegativeColumns    []string               `json:"negative_columns"`
}

// OutlierRule caps a numeric column at K interquartile ranges beyond the
// quartiles.
type OutlierRule struct {
	K float64 `json:"k"`
}

func DefaultCleanRules() CleanRules {
	return CleanRules{
		NormalizeColumns: true,
		TrimStrings:      true,
		DropEmptyRows:    true,
		Deduplicate:      true,
		DateOutputFormat: "iso",
	}
}

// CoercionStats counts one column's type coercion: cells attempted (non-empty
// before) and cells that survived as values.
type CoercionStats struct {
	Attempted   int `json:"attempted"`
	KeptNonNull int `json:"kept_nonnull"`
}

// DateParseStats counts one column's date parsing.
type DateParseStats struct {
	Attempted int `json:"attempted"`
	Parsed    int `json:"parsed"`
}

type CleanChanges struct {
	RenamedColumns      map[string]string         `json:"renamed_columns"`
	TrimmedStringCells  int                       `json:"trimmed_string_cells"`
	DroppedEmptyRows    int                       `json:"dropped_empty_rows"`
	DroppedEmptyColumns int                       `json:"dropped_empty_columns"`
	DroppedColumns      []string                  `json:"dropped_columns"`
	DroppedNullRows     int                       `json:"dropped_null_rows"`
	DedupedRows         int                       `json:"deduped_rows"`
	TypeCoercions       map[string]CoercionStats  `json:"type_coercions"`
	DateParses          map[string]DateParseStats `json:"date_parses"`
	OutliersCapped      map[string]int            `json:"outliers_capped"`
	RemovedNegativeRows int                       `json:"removed_negative_rows"`
}

// CleanTable applies the rules to a copy of the table and reports what
// changed. The input table is not modified.
func CleanTable(tbl *Table, rules CleanRules) (*Table, CleanChanges) {
	out := &Table{
		Headers: append([]string(nil), tbl.Headers...),
		Rows:    make([][]string, len(tbl.Rows)),
	}
	for i, row := range tbl.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}

	changes := CleanChanges{
		RenamedColumns: map[string]string{},
		DroppedColumns: []string{},
		TypeCoercions:  map[string]CoercionStats{},
		DateParses:     map[string]DateParseStats{},
		OutliersCapped: map[string]int{},
	}

	if rules.NormalizeColumns {
		for i, h := range out.Headers {
			normalized := normalizeColumnName(h)
			if normalized != h {
				changes.RenamedColumns[h] = normalized
				out.Headers[i] = normalized
			}
		}
	}
	for from, to := range rules.Rename {
		if ci := out.columnIndex(from); ci >= 0 {
			changes.RenamedColumns[from] = to
			out.Headers[ci] = to
		}
	}

	if rules.TrimStrings {
		for _, row := range out.Rows {
			for i, v := range row {
				trimmed := strings.TrimSpace(v)
				if trimmed != v {
					changes.TrimmedStringCells++
					row[i] = trimmed
				}
			}
		}
	}

	for _, col := range rules.DropColumns {
		if ci := out.columnIndex(col); ci >= 0 {
			out.dropColumn(ci)
			changes.DroppedColumns = append(changes.DroppedColumns, col)
		}
	}

	if rules.DropEmptyColumns {
		for ci := len(out.Headers) - 1; ci >= 0; ci-- {
			empty := true
			for _, row := range out.Rows {
				if !isEmptyCell(row[ci]) {
					empty = false
					break
				}
			}
			if empty && len(out.Rows) > 0 {
				changes.DroppedEmptyColumns++
				out.dropColumn(ci)
			}
		}
	}

	if rules.DropEmptyRows {
		kept := out.Rows[:0]
		for _, row := range out.Rows {
			empty := true
			for _, v := range row {
				if !isEmptyCell(v) {
					empty = false
					break
				}
			}
			if empty {
				changes.DroppedEmptyRows++
			} else {
				kept = append(kept, row)
			}
		}
		out.Rows = kept
	}

	if len(rules.ParseDates) > 0 {
		layout := "2006-01-02"
		if rules.DateOutputFormat == "datetime" {
			layout = "2006-01-02 15:04:05"
		}
		for _, col := range rules.ParseDates {
			ci := out.columnIndex(col)
			if ci < 0 {
				continue
			}
			var stats DateParseStats
			for _, row := range out.Rows {
				if isEmptyCell(row[ci]) {
					continue
				}
				stats.Attempted++
				t, ok := parseDate(row[ci], "auto")
				if !ok {
					// Unparseable dates become empty, like a failed coercion.
					row[ci] = ""
					continue
				}
				stats.Parsed++
				row[ci] = t.Format(layout)
			}
			changes.DateParses[col] = stats
		}
	}

	for col, typ := range rules.CoerceTypes {
		ci := out.columnIndex(col)
		if ci < 0 {
			continue
		}
		var stats CoercionStats
		for _, row := range out.Rows {
			if isEmptyCell(row[ci]) {
				continue
			}
			stats.Attempted++
			coerced, ok := coerceCell(row[ci], typ)
			if !ok {
				row[ci] = ""
				continue
			}
			stats.KeptNonNull++
			row[ci] = coerced
		}
		changes.TypeCoercions[col] = stats
	}

	for col, rule := range rules.CapOutliers {
		k := rule.K
		if k <= 0 {
			k = 1.5
		}
		changes.OutliersCapped[col] = capOutliersIQR(out, col, k)
	}

	if rules.DropNulls {
		indexes := nullCheckIndexes(out, rules.DropNullsSubset)
		kept := out.Rows[:0]
		for _, row := range out.Rows {
			hasNull := false
			for _, ci := range indexes {
				if isEmptyCell(row[ci]) {
					hasNull = true
					break
				}
			}
			if hasNull {
				changes.DroppedNullRows++
			} else {
				kept = append(kept, row)
			}
		}
		out.Rows = kept
	}

	if rules.RemoveNegativeRows {
		// Without an explicit column list every column is scanned.
		cols := rules.NegativeColumns
		if len(cols) == 0 {
			cols = out.Headers
		}
		kept := out.Rows[:0]
		for _, row := range out.Rows {
			if rowHasNegative(out, row, cols) {
				changes.RemovedNegativeRows++
			} else {
				kept = append(kept, row)
			}
		}
		out.Rows = kept
	}

	if rules.Deduplicate {
		subset := rules.DedupeSubset
		if len(subset) == 0 {
			subset = out.Headers
		}
		seen := make(map[string]bool, len(out.Rows))
		kept := out.Rows[:0]
		for _, row := range out.Rows {
			key := dedupeKey(out, row, subset)
			if seen[key] {
				changes.DedupedRows++
			} else {
				seen[key] = true
				kept = append(kept, row)
			}
		}
		out.Rows = kept
	}

	return out, changes
}

// normalizeColumnName lowercases, replaces spaces with underscores, strips
// everything that is not alphanumeric or underscore, and collapses runs of
// underscores.
func normalizeColumnName(name string) string {
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	var sb strings.Builder
	for _, ch := range s {
		if ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			sb.WriteRune(ch)
		}
	}
	out := sb.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return out
}

// coerceCell converts one cell to the target type's canonical string form.
// Failure leaves the cell to be nulled by the caller.
func coerceCell(v, typ string) (string, bool) {
	v = strings.TrimSpace(v)
	switch typ {
	case "string":
		return v, true
	case "bool":
		lower := strings.ToLower(v)
		if truthy[lower] {
			return "true", true
		}
		if falsy[lower] {
			return "false", true
		}
		if d, err := decimal.NewFromString(v); err == nil {
			return strconv.FormatBool(!d.IsZero()), true
		}
		return "", false
	case "int":
		d, err := decimal.NewFromString(v)
		if err != nil {
			return "", false
		}
		return d.Round(0).String(), true
	case "float":
		d, err := decimal.NewFromString(v)
		if err != nil {
			return "", false
		}
		return d.String(), true
	default:
		return "", false
	}
}

// capOutliersIQR clips a numeric column to [q1-k*iqr, q3+k*iqr] and returns
// the number of cells changed. Cells that do not parse as numbers are nulled,
// the same way a numeric coercion would treat them.
func capOutliersIQR(t *Table, col string, k float64) int {
	ci := t.columnIndex(col)
	if ci < 0 {
		return 0
	}

	var values []float64
	for _, row := range t.Rows {
		if f, err := strconv.ParseFloat(strings.TrimSpace(row[ci]), 64); err == nil {
			values = append(values, f)
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	q1 := quantile(values, 0.25)
	q3 := quantile(values, 0.75)
	iqr := q3 - q1
	if iqr == 0 {
		return 0
	}
	lo := q1 - k*iqr
	hi := q3 + k*iqr

	changed := 0
	for _, row := range t.Rows {
		raw := strings.TrimSpace(row[ci])
		if isEmptyCell(raw) {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			row[ci] = ""
			continue
		}
		clipped := f
		if clipped < lo {
			clipped = lo
		}
		if clipped > hi {
			clipped = hi
		}
		if clipped != f {
			changed++
			row[ci] = strconv.FormatFloat(clipped, 'g', -1, 64)
		}
	}
	return changed
}

// quantile interpolates linearly between order statistics, over sorted input.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// nullCheckIndexes resolves the drop_nulls subset to column indexes, or every
// column when no subset is given.
func nullCheckIndexes(t *Table, subset []string) []int {
	if len(subset) == 0 {
		indexes := make([]int, len(t.Headers))
		for i := range t.Headers {
			indexes[i] = i
		}
		return indexes
	}
	var indexes []int
	for _, col := range subset {
		if ci := t.columnIndex(col); ci >= 0 {
			indexes = append(indexes, ci)
		}
	}
	return indexes
}

func (t *Table) dropColumn(ci int) {
	t.Headers = append(t.Headers[:ci], t.Headers[ci+1:]...)
	for i, row := range t.Rows {
		t.Rows[i] = append(row[:ci], row[ci+1:]...)
	}
}

func rowHasNegative(t *Table, row []string, cols []string) bool {
	for _, col := range cols {
		ci := t.columnIndex(col)
		if ci < 0 {
			continue
		}
		// Thousands separators are tolerated for negative detection.
		raw := strings.ReplaceAll(strings.TrimSpace(row[ci]), ",", "")
		d, err := decimal.NewFromString(raw)
		if err == nil && d.IsNegative() {
			return true
		}
	}
	return false
}

func dedupeKey(t *Table, row []string, subset []string) string {
	parts := make([]string, 0, len(subset))
	for _, col := range subset {
		if ci := t.columnIndex(col); ci >= 0 {
			parts = append(parts, row[ci])
		}
	}
	return strings.Join(parts, "\x1f")
}
