// Package batch provides text batching and evaluation aggregation for
// session finalization. Long conversation transcripts are split into
// bounded, overlapping chunks before being sent to the evaluator agent,
// and the per-chunk results are merged back into one compact summary.
package batch

import (
	"regexp"
	"strings"
)

const (
	// DefaultChunkSize is the maximum character count per chunk.
	DefaultChunkSize = 1800
	// DefaultChunkOverlap is the character count shared between adjacent chunks.
	DefaultChunkOverlap = 220

	// Per-field budgets for aggregated evaluations.
	maxStrongPointsLen    = 450
	maxWeakPointsLen      = 450
	maxGeneralCommentsLen = 600

	joinSeparator = "; "
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Evaluation is the structured result of evaluating one chunk of
// student history.
type Evaluation struct {
	StrongPoints    string `json:"strong_points"`
	WeakPoints      string `json:"weak_points"`
	GeneralComments string `json:"general_comments"`
}

// Flatten collapses all whitespace runs (line breaks, tabs) to single
// spaces to reduce payload size.
func Flatten(s string) string {
	s = strings.ReplaceAll(s, "\x00", " ")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// Chunk splits text into slices of at most maxChars characters, each
// overlapping its predecessor by overlap characters so context is not
// lost at chunk edges. Boundaries are counted in runes, never bytes, so
// accented text is never split mid-character. The window always
// advances by at least one character, so the call terminates even when
// overlap >= maxChars. Input at or under maxChars is returned as a
// single chunk.
func Chunk(s string, maxChars, overlap int) []string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	i, n := 0, len(runes)
	for i < n {
		end := i + maxChars
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == n {
			break
		}
		next := end - overlap
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return chunks
}

// dedupJoin joins unique non-empty items with "; " without exceeding
// maxLen. Items are compared case-insensitively and kept in first-seen
// order; an item that would push the result past maxLen is dropped
// whole rather than truncated.
func dedupJoin(items []string, maxLen int) string {
	seen := make(map[string]bool, len(items))
	var out []string
	total := 0
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		key := strings.ToLower(it)
		if seen[key] {
			continue
		}
		addLen := len(it)
		if len(out) > 0 {
			addLen += len(joinSeparator)
		}
		if total+addLen > maxLen {
			break
		}
		seen[key] = true
		out = append(out, it)
		total += addLen
	}
	return strings.Join(out, joinSeparator)
}

// MergeEvaluations combines per-chunk evaluations into one de-duplicated,
// length-capped evaluation. Deterministic: the same ordered input always
// produces the same output.
func MergeEvaluations(evals []Evaluation) Evaluation {
	strong := make([]string, 0, len(evals))
	weak := make([]string, 0, len(evals))
	general := make([]string, 0, len(evals))
	for _, e := range evals {
		strong = append(strong, e.StrongPoints)
		weak = append(weak, e.WeakPoints)
		general = append(general, e.GeneralComments)
	}
	return Evaluation{
		StrongPoints:    dedupJoin(strong, maxStrongPointsLen),
		WeakPoints:      dedupJoin(weak, maxWeakPointsLen),
		GeneralComments: dedupJoin(general, maxGeneralCommentsLen),
	}
}

// SessionSummary builds a compact human-readable summary line for a
// finalized session, capped at maxChars.
func SessionSummary(merged Evaluation, lastTurn string, maxChars int) string {
	var parts []string
	if merged.StrongPoints != "" {
		parts = append(parts, "Strong points: "+merged.StrongPoints)
	}
	if merged.WeakPoints != "" {
		parts = append(parts, "Weak points: "+merged.WeakPoints)
	}
	if merged.GeneralComments != "" {
		parts = append(parts, "Comments: "+merged.GeneralComments)
	}
	if lastTurn = strings.TrimSpace(lastTurn); lastTurn != "" {
		parts = append(parts, "Student's last question: "+lastTurn)
	}
	compact := strings.Join(parts, " | ")
	if runes := []rune(compact); len(runes) > maxChars {
		compact = string(runes[:maxChars])
	}
	return compact
}
