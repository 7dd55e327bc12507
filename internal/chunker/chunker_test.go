package chunker

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `Vision is a synthezoid built by Ultron. He later joined the Avengers!

His body is made of vibranium, which lets him change density at will. Is that unusual? Not for him.

   A third paragraph follows after a line holding only spaces, and it is deliberately long enough to run past a small chunk size so the word packing path is exercised as well.`

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func joined(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}

func allStrategies() []Strategy { return []Strategy{Fixed, Word, Semantic} }

func TestChunkSizeBoundAndCoverage(t *testing.T) {
	inputs := []string{
		sample,
		"short",
		strings.Repeat("x", 1000),
		"supercalifragilisticexpialidocious " + strings.Repeat("ab ", 40),
		"héllo wörld ünïcode " + strings.Repeat("日本語テキスト ", 30),
		"one sentence. two sentence! three? four",
	}

	for _, s := range allStrategies() {
		for _, size := range []int{1, 7, 20, 64, 250} {
			c := NewChunker().WithStrategy(s).WithChunkSize(size).WithMaxChunkSize(250)
			for _, in := range inputs {
				chunks := c.Chunk(in)
				require.NotEmpty(t, chunks, "%s/%d", s, size)
				for _, ch := range chunks {
					assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), size, "%s/%d chunk %q", s, size, ch.Text)
					assert.NotEmpty(t, strings.TrimSpace(ch.Text))
				}
				assert.Equal(t, stripSpace(in), stripSpace(joined(chunks)), "%s/%d", s, size)
			}
		}
	}
}

func TestChunkEmptyInput(t *testing.T) {
	for _, s := range allStrategies() {
		c := NewChunker().WithStrategy(s)
		assert.Empty(t, c.Chunk(""), s.String())
		assert.Empty(t, c.Chunk("   \n\n\t "), s.String())
	}
}

func TestMaxChunkSizeIsCeiling(t *testing.T) {
	c := NewChunker().WithStrategy(Word).WithChunkSize(500).WithMaxChunkSize(50)
	assert.Equal(t, 50, c.Limit())
	for _, ch := range c.Chunk(strings.Repeat("word ", 200)) {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 50)
	}

	assert.Equal(t, DefaultSize, NewChunker().WithChunkSize(0).WithMaxChunkSize(0).Limit())
}

func TestFixedCutsIgnoringWords(t *testing.T) {
	c := NewChunker().WithStrategy(Fixed).WithChunkSize(4)
	chunks := c.Chunk("  abcdefghij  ")
	require.Len(t, chunks, 3)
	assert.Equal(t, "abcd", chunks[0].Text)
	assert.Equal(t, "efgh", chunks[1].Text)
	assert.Equal(t, "ij", chunks[2].Text)
	assert.Equal(t, 2, chunks[0].Start)
	assert.Equal(t, 6, chunks[0].End)
}

func TestWordPacking(t *testing.T) {
	c := NewChunker().WithStrategy(Word).WithChunkSize(11)
	chunks := c.Chunk("the quick brown fox jumps over")
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	assert.Equal(t, []string{"the quick", "brown fox", "jumps over"}, texts)

	chunks = c.Chunk("tiny enormousword!! end")
	texts = texts[:0]
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	assert.Equal(t, []string{"tiny", "enormouswor", "d!!", "end"}, texts)
}

func TestSemanticPrefersParagraphs(t *testing.T) {
	c := NewChunker().WithStrategy(Semantic).WithChunkSize(250)
	chunks := c.Chunk("First paragraph. Two sentences.\n\nSecond paragraph.")
	require.Len(t, chunks, 2)
	assert.Equal(t, "First paragraph. Two sentences.", chunks[0].Text)
	assert.Equal(t, "Second paragraph.", chunks[1].Text)
}

func TestSemanticFallsBackToSentences(t *testing.T) {
	c := NewChunker().WithStrategy(Semantic).WithChunkSize(250)
	chunks := c.Chunk("Is it? Yes! It is. e.g.this stays")
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	assert.Equal(t, []string{"Is it?", "Yes!", "It is.", "e.g.this stays"}, texts)
}

func TestSemanticWithoutDelimitersTerminates(t *testing.T) {
	c := NewChunker().WithStrategy(Semantic).WithChunkSize(1000).WithMaxChunkSize(1000)
	in := strings.Repeat("word ", 300)
	chunks := c.Chunk(in)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), DefaultSize)
	}
	assert.Equal(t, stripSpace(in), stripSpace(joined(chunks)))
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"fixed", Fixed},
		{"size", Fixed},
		{"word", Word},
		{"character", Word},
		{"", Word},
		{"Semantic", Semantic},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStrategy("sentencepiece")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestExtractFields(t *testing.T) {
	record := map[string]any{
		"character_name":      "Vision",
		"description":         "An android created by Ultron",
		"affiliations":        []any{"Avengers", "Ultron", ""},
		"core_attributes":     []any{"logic", 3.5, true},
		"inspirational_theme": nil,
		"meta":                map[string]any{"era": "silver"},
		"blank":               "   ",
	}

	t.Run("selected fields keep order", func(t *testing.T) {
		got := ExtractFields(record, []string{"description", "character_name", "missing", "affiliations"})
		assert.Equal(t, []Field{
			{Label: "description", Text: "An android created by Ultron"},
			{Label: "character_name", Text: "Vision"},
			{Label: "affiliations", Text: "Avengers, Ultron"},
		}, got)
	})

	t.Run("all fields sorted", func(t *testing.T) {
		got := ExtractFields(record, nil)
		labels := make([]string, len(got))
		for i, f := range got {
			labels[i] = f.Label
		}
		assert.Equal(t, []string{"affiliations", "character_name", "core_attributes", "description", "meta"}, labels)
		assert.Equal(t, "logic, 3.5, true", got[2].Text)
		assert.Equal(t, `{"era":"silver"}`, got[4].Text)
	})
}

func TestChunkRecordVision(t *testing.T) {
	record := map[string]any{
		"character_name": "Vision",
		"description":    "An android created by Ultron",
	}
	chunks := NewChunker().WithChunkSize(250).ChunkRecord(record, nil)
	require.Len(t, chunks, 2)
	assert.Equal(t, "character_name", chunks[0].Label)
	assert.Equal(t, "Vision", chunks[0].Text)
	assert.Equal(t, "description", chunks[1].Label)
	assert.Equal(t, "An android created by Ultron", chunks[1].Text)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "héllo", Truncate("héllo", 0))
	assert.Equal(t, "", Truncate("", 3))
	assert.Equal(t, "日本", Truncate("日本語", 2))
	assert.Equal(t, "日本語", Truncate("日本語", 800))
}
