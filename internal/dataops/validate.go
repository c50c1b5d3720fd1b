package dataops

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationConfig controls the CSV validation checks. Zero-value fields
// disable their check; DefaultValidationConfig supplies the stock limits.
type ValidationConfig struct {
	RequiredColumns   []string             `json:"required_columns"`
	NoEmptyHeaders    bool                 `json:"no_empty_headers"`
	NoEmptyRows       bool                 `json:"no_empty_rows"`
	NoEmptyCells      bool                 `json:"no_empty_cells"`
	StripWhitespace   bool                 `json:"strip_whitespace"`
	MaxRows           int                  `json:"max_rows"`
	MaxCols           int                  `json:"max_cols"`
	Types             map[string]TypeRule  `json:"types"`
	RegexRules        map[string]RegexRule `json:"regex_rules"`
	EnumRules         map[string]EnumRule  `json:"enum_rules"`
	DateRules         map[string]DateRule  `json:"date_rules"`
	RangeRules        map[string]RangeRule `json:"range_rules"`
	UniqueRules       []UniqueRule         `json:"unique_rules"`
	NoNegativeNumbers bool                 `json:"no_negative_numbers"`
	SampleErrorsLimit int                  `json:"sample_errors_limit"`
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		NoEmptyHeaders:    true,
		StripWhitespace:   true,
		MaxRows:           50000,
		MaxCols:           200,
		SampleErrorsLimit: 200,
	}
}

// TypeRule is one column type constraint: int|float|bool|string, with
// optional min/max bounds for the numeric types. It accepts both the bare
// shorthand ("int") and the object form ({"type":"int","min":0,"max":10}).
type TypeRule struct {
	Type string
	Min  *decimal.Decimal
	Max  *decimal.Decimal
}

func (r *TypeRule) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.Type)
	}
	var obj struct {
		Type string           `json:"type"`
		Min  *decimal.Decimal `json:"min"`
		Max  *decimal.Decimal `json:"max"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.Type, r.Min, r.Max = obj.Type, obj.Min, obj.Max
	return nil
}

// RegexRule requires non-empty values of a column to match a pattern
// (anchored at the start of the value). Required additionally flags empty
// cells as MISSING_REQUIRED.
type RegexRule struct {
	Pattern  string `json:"pattern"`
	Required bool   `json:"required"`
}

// EnumRule restricts non-empty values of a column to an allowed list.
type EnumRule struct {
	Allowed  []string `json:"allowed"`
	Required bool     `json:"required"`
}

// DateRule requires non-empty values of a column to parse as a date. Format
// is a Go time layout, or "auto" to try a set of common layouts.
type DateRule struct {
	Format   string `json:"format"`
	Required bool   `json:"required"`
}

// RangeRule bounds the numeric values of a column independently of any type
// rule. Non-numeric cells are ignored here; pair with a type rule to reject
// them.
type RangeRule struct {
	Min *decimal.Decimal `json:"min"`
	Max *decimal.Decimal `json:"max"`
}

// UniqueRule requires the combination of Columns to be unique across rows.
// Every member of a duplicated group is flagged, including the first
// occurrence. The rule is skipped if any named column is absent.
type UniqueRule struct {
	Columns         []string `json:"columns"`
	CaseInsensitive bool     `json:"case_insensitive"`
}

// ValidationError describes one failed check. Row is 0-based over data rows
// and nil for table-level errors.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Column  string `json:"column,omitempty"`
	Row     *int   `json:"row,omitempty"`
	Value   string `json:"value,omitempty"`
}

type ValidationStats struct {
	EmptyRows     int            `json:"empty_rows"`
	EmptyCells    int            `json:"empty_cells"`
	InvalidTypes  map[string]int `json:"invalid_types"`
	RegexFailures map[string]int `json:"regex_failures"`
	RangeFailures map[string]int `json:"range_failures"`
	Duplicates    int            `json:"duplicates"`
}

type ValidationReport struct {
	OK         bool              `json:"ok"`
	Rows       int               `json:"rows"`
	Columns    []string          `json:"columns"`
	Errors     []ValidationError `json:"errors"`
	ErrorCount int               `json:"error_count"`
	Stats      ValidationStats   `json:"stats"`
}

// autoDateLayouts are tried in order for DateRule format "auto".
var autoDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// ValidateTable runs every configured check and reports all failures, capped
// at SampleErrorsLimit sampled errors (ErrorCount keeps the true total).
func ValidateTable(tbl *Table, cfg ValidationConfig) ValidationReport {
	report := ValidationReport{
		OK:      true,
		Rows:    len(tbl.Rows),
		Columns: append([]string(nil), tbl.Headers...),
		Stats: ValidationStats{
			InvalidTypes:  map[string]int{},
			RegexFailures: map[string]int{},
			RangeFailures: map[string]int{},
		},
	}

	addError := func(e ValidationError) {
		report.OK = false
		report.ErrorCount++
		if cfg.SampleErrorsLimit <= 0 || len(report.Errors) < cfg.SampleErrorsLimit {
			report.Errors = append(report.Errors, e)
		}
	}
	rowPtr := func(i int) *int { v := i; return &v }

	if cfg.StripWhitespace {
		for _, row := range tbl.Rows {
			for i, v := range row {
				row[i] = strings.TrimSpace(v)
			}
		}
	}

	if cfg.NoEmptyHeaders {
		for _, h := range tbl.Headers {
			if isEmptyCell(h) {
				addError(ValidationError{Code: "EMPTY_HEADER", Message: "column header is empty"})
			}
		}
	}

	if cfg.MaxRows > 0 && len(tbl.Rows) > cfg.MaxRows {
		addError(ValidationError{
			Code:    "TOO_MANY_ROWS",
			Message: "row count " + strconv.Itoa(len(tbl.Rows)) + " exceeds max_rows " + strconv.Itoa(cfg.MaxRows),
			Value:   strconv.Itoa(len(tbl.Rows)),
		})
	}
	if cfg.MaxCols > 0 && len(tbl.Headers) > cfg.MaxCols {
		addError(ValidationError{
			Code:    "TOO_MANY_COLUMNS",
			Message: "column count " + strconv.Itoa(len(tbl.Headers)) + " exceeds max_cols " + strconv.Itoa(cfg.MaxCols),
			Value:   strconv.Itoa(len(tbl.Headers)),
		})
	}

	for _, col := range cfg.RequiredColumns {
		if tbl.columnIndex(col) < 0 {
			addError(ValidationError{
				Code:    "MISSING_COLUMN",
				Message: "missing required column '" + col + "'",
				Column:  col,
			})
		}
	}

	for ri, row := range tbl.Rows {
		empty := true
		for _, v := range row {
			if !isEmptyCell(v) {
				empty = false
				break
			}
		}
		if empty {
			report.Stats.EmptyRows++
			if cfg.NoEmptyRows {
				addError(ValidationError{Code: "EMPTY_ROW", Message: "row is empty", Row: rowPtr(ri)})
			}
			continue
		}
		if cfg.NoEmptyCells {
			for ci, v := range row {
				if isEmptyCell(v) {
					report.Stats.EmptyCells++
					addError(ValidationError{
						Code:    "EMPTY_CELL",
						Message: "cell is empty",
						Column:  tbl.Headers[ci],
						Row:     rowPtr(ri),
					})
				}
			}
		}
	}

	for col, rule := range cfg.Types {
		ci := tbl.columnIndex(col)
		if ci < 0 {
			continue
		}
		for ri, row := range tbl.Rows {
			v := row[ci]
			if isEmptyCell(v) {
				continue
			}
			if !cellMatchesType(v, rule.Type) {
				report.Stats.InvalidTypes[col]++
				addError(ValidationError{
					Code:    "INVALID_TYPE",
					Message: "value is not a valid " + rule.Type,
					Column:  col,
					Row:     rowPtr(ri),
					Value:   v,
				})
				continue
			}
			// Range bounds apply only to values that parse as numbers.
			if rule.Type == "int" || rule.Type == "float" {
				if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
					checkRange(&report, addError, col, rowPtr(ri), d, rule.Min, rule.Max)
				}
			}
		}
	}

	for col, rule := range cfg.RangeRules {
		ci := tbl.columnIndex(col)
		if ci < 0 || (rule.Min == nil && rule.Max == nil) {
			continue
		}
		for ri, row := range tbl.Rows {
			v := row[ci]
			if isEmptyCell(v) {
				continue
			}
			if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
				checkRange(&report, addError, col, rowPtr(ri), d, rule.Min, rule.Max)
			}
		}
	}

	for col, rule := range cfg.RegexRules {
		ci := tbl.columnIndex(col)
		if ci < 0 || rule.Pattern == "" {
			continue
		}
		// Anchored at the start, like the original matcher.
		re, err := regexp.Compile("^(?:" + rule.Pattern + ")")
		if err != nil {
			addError(ValidationError{
				Code:    "REGEX_FAIL",
				Message: "invalid pattern for column '" + col + "': " + err.Error(),
				Column:  col,
			})
			continue
		}
		for ri, row := range tbl.Rows {
			v := row[ci]
			if isEmptyCell(v) {
				if rule.Required {
					addError(ValidationError{
						Code:    "MISSING_REQUIRED",
						Message: "column '" + col + "' is required",
						Column:  col,
						Row:     rowPtr(ri),
					})
				}
				continue
			}
			if !re.MatchString(v) {
				report.Stats.RegexFailures[col]++
				addError(ValidationError{
					Code:    "REGEX_FAIL",
					Message: "value does not match pattern",
					Column:  col,
					Row:     rowPtr(ri),
					Value:   v,
				})
			}
		}
	}

	for col, rule := range cfg.EnumRules {
		ci := tbl.columnIndex(col)
		if ci < 0 {
			continue
		}
		allowed := make(map[string]bool, len(rule.Allowed))
		for _, a := range rule.Allowed {
			allowed[a] = true
		}
		for ri, row := range tbl.Rows {
			v := row[ci]
			if isEmptyCell(v) {
				if rule.Required {
					addError(ValidationError{
						Code:    "MISSING_REQUIRED",
						Message: "column '" + col + "' is required",
						Column:  col,
						Row:     rowPtr(ri),
					})
				}
				continue
			}
			if !allowed[v] {
				addError(ValidationError{
					Code:    "ENUM_FAIL",
					Message: "value '" + v + "' not in allowed list",
					Column:  col,
					Row:     rowPtr(ri),
					Value:   v,
				})
			}
		}
	}

	for col, rule := range cfg.DateRules {
		ci := tbl.columnIndex(col)
		if ci < 0 {
			continue
		}
		format := rule.Format
		if format == "" {
			format = "auto"
		}
		for ri, row := range tbl.Rows {
			v := row[ci]
			if isEmptyCell(v) {
				if rule.Required {
					addError(ValidationError{
						Code:    "MISSING_REQUIRED",
						Message: "column '" + col + "' is required",
						Column:  col,
						Row:     rowPtr(ri),
					})
				}
				continue
			}
			if _, ok := parseDate(v, format); !ok {
				addError(ValidationError{
					Code:    "DATE_INVALID",
					Message: "cannot parse date with format '" + format + "'",
					Column:  col,
					Row:     rowPtr(ri),
					Value:   v,
				})
			}
		}
	}

	for _, rule := range cfg.UniqueRules {
		if len(rule.Columns) == 0 {
			continue
		}
		indexes := make([]int, 0, len(rule.Columns))
		missing := false
		for _, col := range rule.Columns {
			ci := tbl.columnIndex(col)
			if ci < 0 {
				missing = true
				break
			}
			indexes = append(indexes, ci)
		}
		if missing {
			continue
		}

		key := func(row []string) string {
			parts := make([]string, len(indexes))
			for i, ci := range indexes {
				parts[i] = row[ci]
				if rule.CaseInsensitive {
					parts[i] = strings.ToLower(parts[i])
				}
			}
			return strings.Join(parts, "\x1f")
		}
		counts := make(map[string]int, len(tbl.Rows))
		for _, row := range tbl.Rows {
			counts[key(row)]++
		}
		// Every member of a duplicated group is flagged, first occurrence
		// included.
		label := strings.Join(rule.Columns, ",")
		for ri, row := range tbl.Rows {
			if counts[key(row)] < 2 {
				continue
			}
			report.Stats.Duplicates++
			values := make([]string, len(indexes))
			for i, ci := range indexes {
				values[i] = row[ci]
			}
			addError(ValidationError{
				Code:    "DUPLICATE_ROW",
				Message: "duplicate combination on " + label,
				Column:  label,
				Row:     rowPtr(ri),
				Value:   strings.Join(values, ","),
			})
		}
	}

	if cfg.NoNegativeNumbers {
		for ci, col := range tbl.Headers {
			if !columnIsNumeric(tbl, ci) {
				continue
			}
			for ri, row := range tbl.Rows {
				v := row[ci]
				if isEmptyCell(v) {
					continue
				}
				if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil && d.IsNegative() {
					addError(ValidationError{
						Code:    "NEGATIVE_NUMBER",
						Message: "negative numbers not allowed",
						Column:  col,
						Row:     rowPtr(ri),
						Value:   v,
					})
				}
			}
		}
	}

	return report
}

func checkRange(report *ValidationReport, addError func(ValidationError), col string, row *int, d decimal.Decimal, min, max *decimal.Decimal) {
	if min != nil && d.LessThan(*min) {
		report.Stats.RangeFailures[col]++
		addError(ValidationError{
			Code:    "RANGE_FAIL",
			Message: fmt.Sprintf("value %s below min %s", d, min),
			Column:  col,
			Row:     row,
			Value:   d.String(),
		})
		return
	}
	if max != nil && d.GreaterThan(*max) {
		report.Stats.RangeFailures[col]++
		addError(ValidationError{
			Code:    "RANGE_FAIL",
			Message: fmt.Sprintf("value %s above max %s", d, max),
			Column:  col,
			Row:     row,
			Value:   d.String(),
		})
	}
}

// columnIsNumeric reports whether every non-empty cell of the column parses
// as a number. Mirrors a numeric dtype: a lone stray string makes the whole
// column non-numeric.
func columnIsNumeric(tbl *Table, ci int) bool {
	any := false
	for _, row := range tbl.Rows {
		v := row[ci]
		if isEmptyCell(v) {
			continue
		}
		if _, err := decimal.NewFromString(strings.TrimSpace(v)); err != nil {
			return false
		}
		any = true
	}
	return any
}

func parseDate(v, format string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if format == "auto" {
		for _, layout := range autoDateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	t, err := time.Parse(format, v)
	return t, err == nil
}

var (
	truthy = map[string]bool{"true": true, "t": true, "1": true, "yes": true, "y": true}
	falsy  = map[string]bool{"false": true, "f": true, "0": true, "no": true, "n": true}
)

func cellMatchesType(v, typ string) bool {
	switch typ {
	case "string":
		return true
	case "int":
		_, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return err == nil
	case "float":
		_, err := decimal.NewFromString(strings.TrimSpace(v))
		return err == nil
	case "bool":
		lower := strings.ToLower(strings.TrimSpace(v))
		return truthy[lower] || falsy[lower]
	default:
		return false
	}
}
