// Package chunker splits text into bounded-size pieces for embedding.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DefaultSize is the chunk size used when none is configured and by the
// semantic strategy when it finds no paragraph or sentence structure.
const DefaultSize = 250

// ErrUnknownStrategy is returned by ParseStrategy.
var ErrUnknownStrategy = errors.New("unknown chunking strategy")

// Strategy selects how text is cut.
type Strategy int

const (
	// Fixed cuts at an exact rune count regardless of word boundaries.
	Fixed Strategy = iota
	// Word accumulates whole words up to the target size.
	Word
	// Semantic prefers paragraph breaks, then sentence ends, then Word.
	Semantic
)

func (s Strategy) String() string {
	switch s {
	case Fixed:
		return "fixed"
	case Word:
		return "word"
	case Semantic:
		return "semantic"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fixed", "size":
		return Fixed, nil
	case "", "word", "character", "char":
		return Word, nil
	case "semantic":
		return Semantic, nil
	default:
		return Fixed, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Chunk is a contiguous piece of one field's text. Start and End are rune
// offsets into that text.
type Chunk struct {
	Label string
	Start int
	End   int
	Text  string
}

// Chunker is responsible for splitting text into bounded chunks
type Chunker struct {
	strategy Strategy

	// Target size and hard ceiling in runes
	size    int
	maxSize int
}

// NewChunker creates a new Chunker with default settings
func NewChunker() *Chunker {
	return &Chunker{
		strategy: Word,
		size:     DefaultSize,
		maxSize:  DefaultSize,
	}
}

// WithStrategy sets the chunking strategy
func (c *Chunker) WithStrategy(s Strategy) *Chunker {
	c.strategy = s
	return c
}

// WithChunkSize sets the target chunk size
func (c *Chunker) WithChunkSize(size int) *Chunker {
	c.size = size
	return c
}

// WithMaxChunkSize sets the ceiling no chunk may exceed
func (c *Chunker) WithMaxChunkSize(size int) *Chunker {
	c.maxSize = size
	return c
}

// Strategy returns the configured strategy.
func (c *Chunker) Strategy() Strategy { return c.strategy }

// Limit is the effective maximum rune count of any produced chunk.
func (c *Chunker) Limit() int {
	size := c.size
	if size <= 0 {
		size = DefaultSize
	}
	if c.maxSize > 0 && size > c.maxSize {
		size = c.maxSize
	}
	return size
}

// Chunk splits text with the configured strategy. Blank input yields no chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	return c.ChunkField("", text)
}

// ChunkField is Chunk with every chunk labelled.
func (c *Chunker) ChunkField(label, text string) []Chunk {
	rs := []rune(text)
	whole := trim(rs, span{0, len(rs)})
	if whole.empty() {
		return nil
	}

	limit := c.Limit()
	var out []Chunk
	switch c.strategy {
	case Fixed:
		out = fixedChunks(rs, whole, limit)
	case Semantic:
		out = semanticChunks(rs, whole, limit)
	default:
		out = wordChunks(rs, whole, limit)
	}

	for i := range out {
		out[i].Label = label
	}
	return out
}

// ChunkRecord flattens the selected fields of a structured record and
// chunks each one, keeping field order.
func (c *Chunker) ChunkRecord(record map[string]any, fields []string) []Chunk {
	var out []Chunk
	for _, f := range ExtractFields(record, fields) {
		out = append(out, c.ChunkField(f.Label, f.Text)...)
	}
	return out
}

type span struct{ start, end int }

func (s span) runes() int  { return s.end - s.start }
func (s span) empty() bool { return s.end <= s.start }

func trim(rs []rune, s span) span {
	for s.start < s.end && unicode.IsSpace(rs[s.start]) {
		s.start++
	}
	for s.end > s.start && unicode.IsSpace(rs[s.end-1]) {
		s.end--
	}
	return s
}

func makeChunk(rs []rune, s span) Chunk {
	return Chunk{Start: s.start, End: s.end, Text: string(rs[s.start:s.end])}
}

// fixedChunks cuts s every size runes. Pieces that are only whitespace are
// dropped.
func fixedChunks(rs []rune, s span, size int) []Chunk {
	var out []Chunk
	for pos := s.start; pos < s.end; pos += size {
		end := min(pos+size, s.end)
		piece := span{pos, end}
		if trim(rs, piece).empty() {
			continue
		}
		out = append(out, makeChunk(rs, piece))
	}
	return out
}

// wordChunks packs whitespace separated words into chunks of at most size
// runes, joined by single spaces. A word longer than size is cut with
// fixedChunks.
func wordChunks(rs []rune, s span, size int) []Chunk {
	var (
		out     []Chunk
		words   []string
		cur     span
		curSize int
	)

	flush := func() {
		if len(words) == 0 {
			return
		}
		out = append(out, Chunk{Start: cur.start, End: cur.end, Text: strings.Join(words, " ")})
		words = words[:0]
		curSize = 0
	}

	for _, w := range wordSpans(rs, s) {
		wlen := w.runes()
		if wlen > size {
			flush()
			out = append(out, fixedChunks(rs, w, size)...)
			continue
		}
		if len(words) > 0 && curSize+1+wlen > size {
			flush()
		}
		if len(words) == 0 {
			cur = w
			curSize = wlen
		} else {
			cur.end = w.end
			curSize += 1 + wlen
		}
		words = append(words, string(rs[w.start:w.end]))
	}
	flush()
	return out
}

// wordSpans returns the spans of whitespace separated words within s.
func wordSpans(rs []rune, s span) []span {
	var out []span
	start := -1
	for i := s.start; i < s.end; i++ {
		if unicode.IsSpace(rs[i]) {
			if start >= 0 {
				out = append(out, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{start, s.end})
	}
	return out
}

func semanticChunks(rs []rune, s span, limit int) []Chunk {
	pieces := paragraphs(rs, s)
	if len(pieces) <= 1 {
		pieces = sentences(rs, s)
	}
	if len(pieces) <= 1 {
		return wordChunks(rs, s, min(DefaultSize, limit))
	}

	var out []Chunk
	for _, p := range pieces {
		if p.runes() <= limit {
			out = append(out, makeChunk(rs, p))
			continue
		}
		out = append(out, wordChunks(rs, p, limit)...)
	}
	return out
}

// paragraphs splits s on blank lines. Lines holding only whitespace count
// as blank.
func paragraphs(rs []rune, s span) []span {
	var out []span
	start := s.start
	for i := s.start; i < s.end; i++ {
		if rs[i] != '\n' {
			continue
		}
		j := i + 1
		for j < s.end && rs[j] != '\n' && unicode.IsSpace(rs[j]) {
			j++
		}
		if j < s.end && rs[j] == '\n' {
			out = appendTrimmed(out, rs, span{start, i})
			start = j + 1
			i = j
		}
	}
	return appendTrimmed(out, rs, span{start, s.end})
}

// sentences splits s after '.', '!' or '?' followed by whitespace.
func sentences(rs []rune, s span) []span {
	var out []span
	start := s.start
	for i := s.start; i < s.end-1; i++ {
		switch rs[i] {
		case '.', '!', '?':
			if unicode.IsSpace(rs[i+1]) {
				out = appendTrimmed(out, rs, span{start, i + 1})
				start = i + 1
			}
		}
	}
	return appendTrimmed(out, rs, span{start, s.end})
}

func appendTrimmed(out []span, rs []rune, s span) []span {
	t := trim(rs, s)
	if t.empty() {
		return out
	}
	return append(out, t)
}

// Truncate keeps at most n runes of s; n <= 0 keeps everything.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
