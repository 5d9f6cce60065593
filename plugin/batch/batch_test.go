package batch

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestChunkShortInput(t *testing.T) {
	require.Equal(t, []string{"hello world"}, Chunk("  hello world  ", 100, 20))
	require.Equal(t, []string{""}, Chunk("   ", 100, 20))
}

func TestChunkReconstructsInput(t *testing.T) {
	text := strings.Repeat("abcdefghij", 100) // 1000 chars
	maxChars, overlap := 300, 50

	chunks := Chunk(text, maxChars, overlap)
	require.Greater(t, len(chunks), 1)

	// Strip the overlap prefix from every chunk after the first and
	// rebuild: no character loss, no duplication beyond the overlap.
	rebuilt := chunks[0]
	for _, ch := range chunks[1:] {
		require.LessOrEqual(t, len(ch), maxChars)
		require.Equal(t, rebuilt[len(rebuilt)-overlap:], ch[:overlap])
		rebuilt += ch[overlap:]
	}
	require.Equal(t, text, rebuilt)
}

func TestChunkNeverSplitsAccentedCharacters(t *testing.T) {
	text := strings.Repeat("sessão de avaliação çãéíõ ", 200)
	maxChars, overlap := 1800, 220

	chunks := Chunk(text, maxChars, overlap)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		require.True(t, utf8.ValidString(ch), "chunk %d splits a character", i)
		require.LessOrEqual(t, len([]rune(ch)), maxChars)
	}

	// Overlap regions must match between neighbors, and stripping them
	// must rebuild the input exactly, counted in characters.
	rebuilt := []rune(chunks[0])
	for _, ch := range chunks[1:] {
		runes := []rune(ch)
		require.Equal(t, string(rebuilt[len(rebuilt)-overlap:]), string(runes[:overlap]))
		rebuilt = append(rebuilt, runes[overlap:]...)
	}
	require.Equal(t, strings.TrimSpace(text), string(rebuilt))
}

func TestChunkCountBound(t *testing.T) {
	text := strings.Repeat("x", 5000)
	maxChars, overlap := 1800, 220

	chunks := Chunk(text, maxChars, overlap)
	step := maxChars - overlap
	bound := (len(text)-overlap+step-1)/step + 1
	require.LessOrEqual(t, len(chunks), bound)

	last := chunks[len(chunks)-1]
	require.Equal(t, text[len(text)-len(last):], last)
}

func TestChunkTerminatesWithHugeOverlap(t *testing.T) {
	text := strings.Repeat("y", 50)
	chunks := Chunk(text, 10, 10) // overlap == maxChars
	require.NotEmpty(t, chunks)
	require.Equal(t, text[len(text)-10:], chunks[len(chunks)-1])

	chunks = Chunk(text, 10, 25) // overlap > maxChars
	require.NotEmpty(t, chunks)
}

func TestDedupJoin(t *testing.T) {
	got := dedupJoin([]string{" a ", "", "b", "A", "c"}, 100)
	require.Equal(t, "a; b; c", got)
}

func TestDedupJoinNeverTruncatesMidItem(t *testing.T) {
	got := dedupJoin([]string{"aaaa", "bbbb", "cccc"}, 11)
	// "aaaa; bbbb" is 10 chars; adding "; cccc" would exceed 11.
	require.Equal(t, "aaaa; bbbb", got)
}

func TestDedupJoinIdempotent(t *testing.T) {
	items := []string{"grammar", "listening", "Grammar", "vocabulary", "", "focus"}
	first := dedupJoin(items, 40)
	second := dedupJoin(strings.Split(first, joinSeparator), 40)
	require.Equal(t, first, second)
}

func TestMergeEvaluationsEmpty(t *testing.T) {
	require.Equal(t, Evaluation{}, MergeEvaluations(nil))
	require.Equal(t, Evaluation{}, MergeEvaluations([]Evaluation{}))
}

func TestMergeEvaluations(t *testing.T) {
	evals := []Evaluation{
		{StrongPoints: "curiosity", WeakPoints: "verb tenses", GeneralComments: "engaged"},
		{StrongPoints: "Curiosity", WeakPoints: "spelling", GeneralComments: ""},
		{StrongPoints: "persistence", WeakPoints: "verb tenses", GeneralComments: "needs practice"},
	}
	merged := MergeEvaluations(evals)
	require.Equal(t, "curiosity; persistence", merged.StrongPoints)
	require.Equal(t, "verb tenses; spelling", merged.WeakPoints)
	require.Equal(t, "engaged; needs practice", merged.GeneralComments)
}

func TestMergeEvaluationsAssociative(t *testing.T) {
	evals := []Evaluation{
		{StrongPoints: "a", WeakPoints: "x"},
		{StrongPoints: "b", WeakPoints: "x"},
		{StrongPoints: "a", WeakPoints: "y"},
		{StrongPoints: "c", WeakPoints: "z"},
	}

	flat := MergeEvaluations(evals)
	left := MergeEvaluations(evals[:2])
	right := MergeEvaluations(evals[2:])

	// Splitting the chunk list, merging each half, then applying the
	// same dedup rule over the partial items retains exactly the items
	// of the flat merge, in first-occurrence order.
	strong := append(strings.Split(left.StrongPoints, joinSeparator),
		strings.Split(right.StrongPoints, joinSeparator)...)
	weak := append(strings.Split(left.WeakPoints, joinSeparator),
		strings.Split(right.WeakPoints, joinSeparator)...)
	require.Equal(t, flat.StrongPoints, dedupJoin(strong, maxStrongPointsLen))
	require.Equal(t, flat.WeakPoints, dedupJoin(weak, maxWeakPointsLen))
}

func TestFlatten(t *testing.T) {
	require.Equal(t, "a b c", Flatten("  a\n\nb\t\tc \r\n"))
	require.Equal(t, "", Flatten("\n \t"))
}

func TestSessionSummary(t *testing.T) {
	merged := Evaluation{StrongPoints: "focus", WeakPoints: "algebra", GeneralComments: "keep going"}
	got := SessionSummary(merged, "what is x?", 1800)
	require.Equal(t,
		"Strong points: focus | Weak points: algebra | Comments: keep going | Student's last question: what is x?",
		got)

	require.Len(t, SessionSummary(merged, "", 10), 10)
	require.Equal(t, "", SessionSummary(Evaluation{}, "", 100))
}

func TestSessionSummaryTruncatesOnCharacterBoundary(t *testing.T) {
	merged := Evaluation{GeneralComments: strings.Repeat("atenção à pronúncia ", 20)}

	got := SessionSummary(merged, "", 25)
	require.True(t, utf8.ValidString(got))
	require.Len(t, []rune(got), 25)
}
