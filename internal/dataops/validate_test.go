package dataops

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func mustReadTable(t *testing.T, csvText string) *Table {
	t.Helper()
	tbl, err := ReadTable(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	return tbl
}

func errorCodes(report ValidationReport) map[string]int {
	codes := make(map[string]int)
	for _, e := range report.Errors {
		codes[e.Code]++
	}
	return codes
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestReadTable_RaggedRowsPadded(t *testing.T) {
	tbl := mustReadTable(t, "a,b,c\n1,2\n1,2,3,4\n")
	if len(tbl.Headers) != 3 {
		t.Fatalf("headers: %v", tbl.Headers)
	}
	for i, row := range tbl.Rows {
		if len(row) != 3 {
			t.Errorf("row %d width: got %d want 3", i, len(row))
		}
	}
	if tbl.Rows[0][2] != "" {
		t.Errorf("short row must be padded, got %q", tbl.Rows[0][2])
	}
	if tbl.Rows[1][2] != "3" {
		t.Errorf("long row must be truncated to header width, got %v", tbl.Rows[1])
	}
}

func TestReadTable_Empty(t *testing.T) {
	if _, err := ReadTable(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestValidateTable_CleanInput(t *testing.T) {
	tbl := mustReadTable(t, "id,name,amount\n1,alice,10.5\n2,bob,3\n")
	cfg := DefaultValidationConfig()
	cfg.RequiredColumns = []string{"id", "name"}
	cfg.Types = map[string]TypeRule{"id": {Type: "int"}, "amount": {Type: "float"}}
	cfg.UniqueRules = []UniqueRule{{Columns: []string{"id"}}}

	report := ValidateTable(tbl, cfg)
	if !report.OK {
		t.Fatalf("expected OK, got errors: %+v", report.Errors)
	}
	if report.Rows != 2 {
		t.Errorf("rows: got %d want 2", report.Rows)
	}
	if report.ErrorCount != 0 || len(report.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", report.Errors)
	}
}

func TestValidateTable_MissingColumn(t *testing.T) {
	tbl := mustReadTable(t, "id,name\n1,alice\n")
	cfg := DefaultValidationConfig()
	cfg.RequiredColumns = []string{"id", "amount"}

	report := ValidateTable(tbl, cfg)
	if report.OK {
		t.Fatal("expected failure")
	}
	codes := errorCodes(report)
	if codes["MISSING_COLUMN"] != 1 {
		t.Errorf("MISSING_COLUMN count: %v", codes)
	}
	if report.Errors[0].Column != "amount" {
		t.Errorf("column: got %q", report.Errors[0].Column)
	}
}

func TestValidateTable_EmptyHeaderAndCells(t *testing.T) {
	tbl := mustReadTable(t, "id,,name\n1,x,\n,,\n")
	cfg := DefaultValidationConfig()
	cfg.NoEmptyRows = true
	cfg.NoEmptyCells = true

	report := ValidateTable(tbl, cfg)
	codes := errorCodes(report)
	if codes["EMPTY_HEADER"] != 1 {
		t.Errorf("EMPTY_HEADER: %v", codes)
	}
	if codes["EMPTY_ROW"] != 1 {
		t.Errorf("EMPTY_ROW: %v", codes)
	}
	// Row 1 has one empty cell; the fully empty row 2 counts as EMPTY_ROW
	// only, not cell-by-cell.
	if codes["EMPTY_CELL"] != 1 {
		t.Errorf("EMPTY_CELL: %v", codes)
	}
	if report.Stats.EmptyRows != 1 || report.Stats.EmptyCells != 1 {
		t.Errorf("stats: %+v", report.Stats)
	}
}

func TestValidateTable_TypeChecks(t *testing.T) {
	tbl := mustReadTable(t, "n,f,b\nnope,1.5,yes\n3,abc,maybe\n")
	cfg := DefaultValidationConfig()
	cfg.Types = map[string]TypeRule{
		"n": {Type: "int"},
		"f": {Type: "float"},
		"b": {Type: "bool"},
	}

	report := ValidateTable(tbl, cfg)
	if report.OK {
		t.Fatal("expected failures")
	}
	if report.Stats.InvalidTypes["n"] != 1 {
		t.Errorf("int failures: %+v", report.Stats.InvalidTypes)
	}
	if report.Stats.InvalidTypes["f"] != 1 {
		t.Errorf("float failures: %+v", report.Stats.InvalidTypes)
	}
	if report.Stats.InvalidTypes["b"] != 1 {
		t.Errorf("bool failures: %+v", report.Stats.InvalidTypes)
	}
}

func TestValidateTable_TypeRuleBounds(t *testing.T) {
	tbl := mustReadTable(t, "qty\n-1\n5\n12\nabc\n")
	cfg := DefaultValidationConfig()
	cfg.Types = map[string]TypeRule{
		"qty": {Type: "int", Min: decPtr("0"), Max: decPtr("10")},
	}

	report := ValidateTable(tbl, cfg)
	codes := errorCodes(report)
	if codes["RANGE_FAIL"] != 2 {
		t.Errorf("RANGE_FAIL: %v", codes)
	}
	if codes["INVALID_TYPE"] != 1 {
		t.Errorf("INVALID_TYPE: %v", codes)
	}
	if report.Stats.RangeFailures["qty"] != 2 {
		t.Errorf("range_failures: %+v", report.Stats.RangeFailures)
	}
}

// The bare-string shorthand and the object form of a type rule decode to the
// same thing.
func TestTypeRule_UnmarshalForms(t *testing.T) {
	var rules map[string]TypeRule
	raw := `{"a":"int","b":{"type":"float","min":0,"max":9.5}}`
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		t.Fatal(err)
	}
	if rules["a"].Type != "int" || rules["a"].Min != nil {
		t.Errorf("shorthand rule: %+v", rules["a"])
	}
	b := rules["b"]
	if b.Type != "float" || b.Min == nil || b.Max == nil {
		t.Fatalf("object rule: %+v", b)
	}
	if !b.Min.Equal(decimal.Zero) || !b.Max.Equal(decimal.RequireFromString("9.5")) {
		t.Errorf("bounds: min %v max %v", b.Min, b.Max)
	}
}

func TestValidateTable_RangeRules(t *testing.T) {
	tbl := mustReadTable(t, "score\n50\n150\nn/a\n")
	cfg := DefaultValidationConfig()
	cfg.RangeRules = map[string]RangeRule{"score": {Min: decPtr("0"), Max: decPtr("100")}}

	report := ValidateTable(tbl, cfg)
	codes := errorCodes(report)
	// Non-numeric cells are ignored by a bare range rule.
	if codes["RANGE_FAIL"] != 1 {
		t.Errorf("RANGE_FAIL: %v", codes)
	}
	if report.Stats.RangeFailures["score"] != 1 {
		t.Errorf("range_failures: %+v", report.Stats.RangeFailures)
	}
}

func TestValidateTable_RegexRules(t *testing.T) {
	tbl := mustReadTable(t, "email,id\nok@test.com,1\nbad@,2\n,3\n")
	cfg := DefaultValidationConfig()
	cfg.RegexRules = map[string]RegexRule{
		"email": {Pattern: `[^@\s]+@[^@\s]+\.[^@\s]+$`, Required: true},
	}

	report := ValidateTable(tbl, cfg)
	codes := errorCodes(report)
	if codes["REGEX_FAIL"] != 1 {
		t.Errorf("REGEX_FAIL: %v", codes)
	}
	if codes["MISSING_REQUIRED"] != 1 {
		t.Errorf("MISSING_REQUIRED: %v", codes)
	}
	if report.Stats.RegexFailures["email"] != 1 {
		t.Errorf("regex_failures: %+v", report.Stats.RegexFailures)
	}
}

// Patterns match from the start of the value, not anywhere inside it.
func TestValidateTable_RegexAnchoredAtStart(t *testing.T) {
	tbl := mustReadTable(t, "code\nAB123\nxxAB123\n")
	cfg := DefaultValidationConfig()
	cfg.RegexRules = map[string]RegexRule{"code": {Pattern: `AB\d+`}}

	report := ValidateTable(tbl, cfg)
	if got := errorCodes(report)["REGEX_FAIL"]; got != 1 {
		t.Errorf("REGEX_FAIL: got %d want 1: %+v", got, report.Errors)
	}
}

func TestValidateTable_BadRegexReported(t *testing.T) {
	tbl := mustReadTable(t, "code\nx\n")
	cfg := DefaultValidationConfig()
	cfg.RegexRules = map[string]RegexRule{"code": {Pattern: `([`}}

	report := ValidateTable(tbl, cfg)
	if report.OK {
		t.Fatal("expected failure for an uncompilable pattern")
	}
	if errorCodes(report)["REGEX_FAIL"] != 1 {
		t.Errorf("errors: %+v", report.Errors)
	}
}

func TestValidateTable_EnumRules(t *testing.T) {
	tbl := mustReadTable(t, "state,id\nCA,1\nZZ,2\n,3\n")
	cfg := DefaultValidationConfig()
	cfg.EnumRules = map[string]EnumRule{
		"state": {Allowed: []string{"CA", "IL", "TX"}, Required: true},
	}

	report := ValidateTable(tbl, cfg)
	codes := errorCodes(report)
	if codes["ENUM_FAIL"] != 1 {
		t.Errorf("ENUM_FAIL: %v", codes)
	}
	if codes["MISSING_REQUIRED"] != 1 {
		t.Errorf("MISSING_REQUIRED: %v", codes)
	}
}

func TestValidateTable_DateRules(t *testing.T) {
	tbl := mustReadTable(t, "day,id\n2024-01-01,1\nnot-a-date,2\n,3\n")
	cfg := DefaultValidationConfig()
	cfg.DateRules = map[string]DateRule{"day": {Format: "auto", Required: true}}

	report := ValidateTable(tbl, cfg)
	codes := errorCodes(report)
	if codes["DATE_INVALID"] != 1 {
		t.Errorf("DATE_INVALID: %v", codes)
	}
	if codes["MISSING_REQUIRED"] != 1 {
		t.Errorf("MISSING_REQUIRED: %v", codes)
	}
}

func TestValidateTable_DateExplicitLayout(t *testing.T) {
	tbl := mustReadTable(t, "day\n01/31/2024\n2024-01-31\n")
	cfg := DefaultValidationConfig()
	cfg.DateRules = map[string]DateRule{"day": {Format: "01/02/2006"}}

	report := ValidateTable(tbl, cfg)
	if got := errorCodes(report)["DATE_INVALID"]; got != 1 {
		t.Errorf("DATE_INVALID: got %d want 1: %+v", got, report.Errors)
	}
}

// Every member of a duplicated combination is flagged, including the first
// occurrence.
func TestValidateTable_UniqueRuleFlagsAllMembers(t *testing.T) {
	tbl := mustReadTable(t, "id,region\n1,west\n2,east\n1,west\n1,WEST\n")
	cfg := DefaultValidationConfig()
	cfg.UniqueRules = []UniqueRule{
		{Columns: []string{"id", "region"}, CaseInsensitive: true},
	}

	report := ValidateTable(tbl, cfg)
	codes := errorCodes(report)
	if codes["DUPLICATE_ROW"] != 3 {
		t.Errorf("DUPLICATE_ROW: got %d want 3: %+v", codes["DUPLICATE_ROW"], report.Errors)
	}
	if report.Stats.Duplicates != 3 {
		t.Errorf("duplicates: got %d want 3", report.Stats.Duplicates)
	}
	for _, e := range report.Errors {
		if e.Column != "id,region" {
			t.Errorf("column label: %q", e.Column)
		}
	}
}

func TestValidateTable_UniqueRuleMissingColumnSkipped(t *testing.T) {
	tbl := mustReadTable(t, "id\n1\n1\n")
	cfg := DefaultValidationConfig()
	cfg.UniqueRules = []UniqueRule{{Columns: []string{"id", "absent"}}}

	report := ValidateTable(tbl, cfg)
	if !report.OK {
		t.Errorf("rule with a missing column must be skipped: %+v", report.Errors)
	}
}

func TestValidateTable_NoNegativeNumbers(t *testing.T) {
	tbl := mustReadTable(t, "amount,note\n-3,refund\n10,sale\n")
	cfg := DefaultValidationConfig()
	cfg.NoNegativeNumbers = true

	report := ValidateTable(tbl, cfg)
	codes := errorCodes(report)
	if codes["NEGATIVE_NUMBER"] != 1 {
		t.Errorf("NEGATIVE_NUMBER: %v", codes)
	}
	// The text column never triggers the check.
	for _, e := range report.Errors {
		if e.Column == "note" {
			t.Errorf("non-numeric column flagged: %+v", e)
		}
	}
}

func TestValidateTable_RowLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id\n")
	for i := 0; i < 5; i++ {
		sb.WriteString("x\n")
	}
	tbl := mustReadTable(t, sb.String())
	cfg := DefaultValidationConfig()
	cfg.MaxRows = 3

	report := ValidateTable(tbl, cfg)
	if errorCodes(report)["TOO_MANY_ROWS"] != 1 {
		t.Errorf("expected TOO_MANY_ROWS: %+v", report.Errors)
	}
}

func TestValidateTable_SampleLimit(t *testing.T) {
	tbl := mustReadTable(t, "n\na\nb\nc\nd\n")
	cfg := DefaultValidationConfig()
	cfg.Types = map[string]TypeRule{"n": {Type: "int"}}
	cfg.SampleErrorsLimit = 2

	report := ValidateTable(tbl, cfg)
	if len(report.Errors) != 2 {
		t.Errorf("sampled errors: got %d want 2", len(report.Errors))
	}
	if report.ErrorCount != 4 {
		t.Errorf("error_count: got %d want 4", report.ErrorCount)
	}
}

// Column order follows first key appearance in the JSON, not sort order.
func TestTableFromJSON_InsertionOrder(t *testing.T) {
	raw := `[
		{"b": 1, "a": "x"},
		{"c": true, "a": 2.5}
	]`
	tbl, err := TableFromJSON([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b", "a", "c"}
	if len(tbl.Headers) != 3 {
		t.Fatalf("headers: %v", tbl.Headers)
	}
	for i, h := range want {
		if tbl.Headers[i] != h {
			t.Fatalf("headers: got %v want %v", tbl.Headers, want)
		}
	}
	if tbl.Rows[0][0] != "1" || tbl.Rows[0][1] != "x" || tbl.Rows[0][2] != "" {
		t.Errorf("row 0: %v", tbl.Rows[0])
	}
	if tbl.Rows[1][1] != "2.5" || tbl.Rows[1][2] != "true" {
		t.Errorf("row 1: %v", tbl.Rows[1])
	}
}

func TestTableFromJSON_RejectsNonArray(t *testing.T) {
	if _, err := TableFromJSON([]byte(`{"a":1}`)); err == nil {
		t.Fatal("expected error for a non-array payload")
	}
	if _, err := TableFromJSON([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for non-object rows")
	}
}

func TestTableCSV_RoundTrip(t *testing.T) {
	in := "id,name\n1,alice\n2,bob\n"
	tbl := mustReadTable(t, in)
	out, err := tbl.CSV()
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("csv round trip: got %q want %q", out, in)
	}
}
