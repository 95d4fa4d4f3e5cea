// Package chunker splits long source text into overlapping chunks sized for
// model context limits, preferring sentence boundaries over hard cuts.
package chunker

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/K-Arthur/script-generator/textmetrics"
)

// Config holds chunking configuration. Sizes are in bytes of UTF-8 text.
type Config struct {
	// Size is the target chunk length. Chunks may run past it to finish a sentence.
	Size int

	// Overlap is the maximum number of bytes shared by adjacent chunks.
	Overlap int
}

// DefaultConfig returns the chunking defaults.
func DefaultConfig() Config {
	return Config{
		Size:    6000,
		Overlap: 200,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("Size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("Overlap must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("Overlap (%d) must be less than Size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Metrics summarizes a chunk's readability.
type Metrics struct {
	FleschScore       float64 `json:"flesch_score"`
	WordCount         int     `json:"word_count"`
	SentenceCount     int     `json:"sentence_count"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
}

// Chunk is one piece of the source text. Start and End are byte offsets into
// the original text, so text[Start:End] == Content.
type Chunk struct {
	Index   int     `json:"index"`
	Content string  `json:"content"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Metrics Metrics `json:"metrics"`
}

// Chunker splits text according to its Config.
type Chunker struct {
	config Config
}

// New creates a new Chunker with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	return &Chunker{config: cfg}, nil
}

// MustNew creates a new Chunker, panicking on invalid config.
func MustNew(cfg Config) *Chunker {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// NewDefault creates a Chunker with default configuration.
func NewDefault() *Chunker {
	return MustNew(DefaultConfig())
}

// Chunk splits text into chunks. Text that is empty after trimming yields no chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	var chunks []Chunk
	for chunk := range c.All(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// All returns a restartable iterator over the chunks of text.
func (c *Chunker) All(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if len(text) <= c.config.Size {
			yield(newChunk(0, text, 0, len(text)))
			return
		}

		// Whitespace before a chunk's first word belongs to that chunk, so
		// the chunks cover every byte of text.
		start := 0
		for index := 0; ; index++ {
			body := skipSpace(text, start)
			end := c.boundary(text, body)
			next := c.nextStart(text, body, end)
			if next >= len(text) || strings.TrimSpace(text[next:]) == "" {
				// Fold trailing whitespace into the last chunk so nothing is dropped.
				yield(newChunk(index, text[start:], start, len(text)))
				return
			}
			if !yield(newChunk(index, text[start:end], start, end)) {
				return
			}
			start = next
		}
	}
}

// boundary picks the end offset for a chunk beginning at start.
func (c *Chunker) boundary(text string, start int) int {
	target := start + c.config.Size
	if target >= len(text) {
		return len(text)
	}

	// Prefer running past the target to finish the current sentence.
	limit := min(len(text), target+c.config.Size/2)
	for i := target; i < limit; i++ {
		if isSentenceEnd(text, i) {
			return i + 1
		}
	}

	// Otherwise back up to the last sentence end in the second half of the window.
	floor := start + c.config.Size/2
	for i := target - 1; i > floor; i-- {
		if isSentenceEnd(text, i) {
			return i + 1
		}
	}

	// Then to a word boundary.
	for i := target; i > floor; i-- {
		if isSpaceByte(text[i]) {
			return i
		}
	}

	// Hard cut on a rune boundary.
	for target > start+1 && !utf8.RuneStart(text[target]) {
		target--
	}
	return target
}

// nextStart returns where the chunk after [start, end) begins: at the first
// word start inside the overlap window, or at end when there is none.
func (c *Chunker) nextStart(text string, start, end int) int {
	if end >= len(text) {
		return len(text)
	}
	from := max(end-c.config.Overlap, start+1)
	for i := from; i < end; i++ {
		if isSpaceByte(text[i-1]) && !isSpaceByte(text[i]) {
			return i
		}
	}
	return end
}

func newChunk(index int, content string, start, end int) Chunk {
	s := textmetrics.ComputeStructure(content)
	return Chunk{
		Index:   index,
		Content: content,
		Start:   start,
		End:     end,
		Metrics: Metrics{
			FleschScore:       textmetrics.ComputeReadability(content).FleschScore,
			WordCount:         s.WordCount,
			SentenceCount:     s.SentenceCount,
			AvgSentenceLength: s.AvgSentenceLength,
		},
	}
}

// isSentenceEnd reports whether text[i] terminates a sentence.
func isSentenceEnd(text string, i int) bool {
	switch text[i] {
	case '.', '!', '?':
	default:
		return false
	}
	return i+1 == len(text) || isSpaceByte(text[i+1])
}

func isSpaceByte(b byte) bool {
	return b < utf8.RuneSelf && unicode.IsSpace(rune(b))
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpaceByte(text[i]) {
		i++
	}
	return i
}
