package dataops

import (
	"regexp"
	"sort"
	"strings"
)

var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bERROR\b`),
	regexp.MustCompile(`\bException\b`),
	regexp.MustCompile(`\bTraceback\b`),
	regexp.MustCompile(`(?i)\bFATAL\b`),
}

var (
	timestampRe  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?Z?\b`)
	hexRe        = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	numberRe     = regexp.MustCompile(`\b\d+\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

const signatureMaxLen = 240

type LogIssue struct {
	Signature string `json:"signature"`
	Count     int    `json:"count"`
}

type LogSummary struct {
	Lines          int        `json:"lines"`
	ErrorLikeLines int        `json:"error_like_lines"`
	TopIssues      []LogIssue `json:"top_issues"`
	Counts         struct {
		UniqueSignatures int `json:"unique_signatures"`
	} `json:"counts"`
}

// SummarizeLogs groups error-like lines (or all lines, when none look like
// errors) by a normalized signature and returns the topK most frequent.
func SummarizeLogs(text string, topK int) LogSummary {
	var summary LogSummary
	if strings.TrimSpace(text) == "" {
		summary.TopIssues = []LogIssue{}
		return summary
	}

	// CRLF and bare CR both count as line breaks, so Windows-origin logs
	// group under the same signatures.
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	summary.Lines = len(lines)

	var errorLines []string
	for _, ln := range lines {
		for _, p := range errorPatterns {
			if p.MatchString(ln) {
				errorLines = append(errorLines, ln)
				break
			}
		}
	}
	summary.ErrorLikeLines = len(errorLines)

	source := errorLines
	if len(source) == 0 {
		source = lines
	}

	counts := make(map[string]int, len(source))
	for _, ln := range source {
		counts[logSignature(ln)]++
	}
	summary.Counts.UniqueSignatures = len(counts)

	issues := make([]LogIssue, 0, len(counts))
	for sig, n := range counts {
		issues = append(issues, LogIssue{Signature: sig, Count: n})
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Count != issues[j].Count {
			return issues[i].Count > issues[j].Count
		}
		return issues[i].Signature < issues[j].Signature
	})
	if topK > 0 && len(issues) > topK {
		issues = issues[:topK]
	}
	summary.TopIssues = issues
	return summary
}

// logSignature normalizes the volatile parts of a log line (timestamps, hex
// ids, numbers, whitespace runs) so repeated occurrences of one issue group
// together.
func logSignature(line string) string {
	s := timestampRe.ReplaceAllString(line, "<ts>")
	s = hexRe.ReplaceAllString(s, "<hex>")
	s = numberRe.ReplaceAllString(s, "<n>")
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	if len(s) > signatureMaxLen {
		s = s[:signatureMaxLen]
	}
	return s
}
