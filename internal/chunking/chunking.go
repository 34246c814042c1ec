// Package chunking splits document text into embedding-sized chunks.
//
// Six strategies are provided. Fixed slides a character window with
// overlap; Semantic accumulates sentences; Hierarchical and
// MarkdownAware split at headings; SyntaxAware respects brace scope in
// code; Adaptive inspects the text and picks one of the others. Every
// chunk carries byte offsets into the input plus importance and
// semantic-density scores.
package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Strategy selects how text is split.
type Strategy string

const (
	StrategyFixed         Strategy = "fixed"
	StrategySemantic      Strategy = "semantic"
	StrategyHierarchical  Strategy = "hierarchical"
	StrategySyntaxAware   Strategy = "syntax_aware"
	StrategyMarkdownAware Strategy = "markdown_aware"
	StrategyAdaptive      Strategy = "adaptive"
)

// Section kinds attached to emitted chunks.
const (
	SectionText    = "text"
	SectionHeading = "heading"
	SectionCode    = "code"
)

// DefaultChunkSize is the default chunk size. Sizes are measured in
// bytes to match chunk offsets; windows never split a UTF-8 sequence,
// so multi-byte text yields fewer characters per chunk, not broken
// ones.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of overlapping bytes for the
// fixed strategy.
const DefaultOverlap = 200

// Chunk is one emitted piece of a document.
type Chunk struct {
	ID           string
	Content      string
	Start        int // byte offset into the input, inclusive
	End          int // byte offset into the input, exclusive
	Position     int
	SectionKind  string
	HeadingLevel int
	Importance   float64
	Density      float64
}

// Engine chunks text according to a configured strategy.
type Engine struct {
	chunkSize int
	overlap   int
	strategy  Strategy
}

// Option configures the chunking engine.
type Option func(*Engine)

// WithChunkSize sets the chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between fixed chunks in bytes.
func WithOverlap(overlap int) Option {
	return func(e *Engine) {
		if overlap >= 0 {
			e.overlap = overlap
		}
	}
}

// WithStrategy sets the splitting strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		if s != "" {
			e.strategy = s
		}
	}
}

// New creates a chunking engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
		strategy:  StrategyAdaptive,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.overlap >= e.chunkSize {
		e.overlap = e.chunkSize / 4
	}
	return e
}

// Chunk splits text. The language tag, when non-empty, biases adaptive
// selection toward syntax-aware splitting.
func (e *Engine) Chunk(text, language string) []Chunk {
	if text == "" {
		return nil
	}

	strategy := e.strategy
	if strategy == StrategyAdaptive {
		strategy = e.selectStrategy(text, language)
	}

	var chunks []Chunk
	switch strategy {
	case StrategySemantic:
		chunks = e.semantic(text, 0)
	case StrategyHierarchical:
		chunks = e.hierarchical(text)
	case StrategySyntaxAware:
		chunks = e.syntaxAware(text)
	case StrategyMarkdownAware:
		chunks = e.markdownAware(text)
	default:
		chunks = e.fixed(text)
	}

	for i := range chunks {
		chunks[i].ID = uuid.New().String()
		chunks[i].Position = i
		chunks[i].Density = semanticDensity(chunks[i].Content)
		chunks[i].Importance = importance(&chunks[i], e.chunkSize)
	}
	return chunks
}

// selectStrategy inspects the text and picks a concrete strategy.
// Fenced code blocks win; then heading-dominated text; then long or
// dense prose; fixed is the fallback.
func (e *Engine) selectStrategy(text, language string) Strategy {
	if language != "" || strings.Contains(text, "```") {
		return StrategySyntaxAware
	}

	lines := strings.Split(text, "\n")
	headings := 0
	for _, line := range lines {
		if headingLevel(line) > 0 {
			headings++
		}
	}
	if headings >= 3 && headings*10 >= len(lines) {
		return StrategyHierarchical
	}

	sentences := splitSentences(text)
	if len(sentences) > 0 {
		totalWords := 0
		for _, s := range sentences {
			totalWords += len(strings.Fields(s.text))
		}
		if float64(totalWords)/float64(len(sentences)) > 50 {
			return StrategySemantic
		}
	}
	if semanticDensity(text) > 0.7 {
		return StrategySemantic
	}
	return StrategyFixed
}

// fixed slides a window of chunkSize bytes with overlap, breaking
// at the last whitespace inside the window when one exists. Offsets
// always land on rune boundaries.
func (e *Engine) fixed(text string) []Chunk {
	var chunks []Chunk
	n := len(text)
	start := 0

	for start < n {
		end := start + e.chunkSize
		if end >= n {
			end = n
		} else {
			end = alignRune(text, end)
			if ws := lastWhitespace(text[start:end]); ws > 0 {
				end = start + ws
			}
		}

		chunks = append(chunks, Chunk{
			Content:     text[start:end],
			Start:       start,
			End:         end,
			SectionKind: SectionText,
		})
		if end >= n {
			break
		}

		next := end - e.overlap
		if next <= start {
			next = start + 1
		}
		start = alignRune(text, next)
	}
	return chunks
}

// semantic accumulates sentences until the next one would overflow the
// chunk size, or until lexical overlap with the accumulator drops below
// 0.3 once the accumulator holds at least half a chunk. base offsets the
// emitted chunks into the enclosing document.
func (e *Engine) semantic(text string, base int) []Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	accStart := sentences[0].start
	accEnd := sentences[0].end

	flush := func() {
		content := strings.TrimSpace(text[accStart:accEnd])
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Content:     content,
			Start:       base + accStart,
			End:         base + accEnd,
			SectionKind: SectionText,
		})
	}

	for _, next := range sentences[1:] {
		accLen := accEnd - accStart
		overflow := accLen+(next.end-next.start) > e.chunkSize
		drift := accLen >= e.chunkSize/2 &&
			jaccard(wordSet(text[accStart:accEnd]), wordSet(next.text)) < 0.3

		if overflow || drift {
			flush()
			accStart = next.start
		}
		accEnd = next.end
	}
	flush()
	return chunks
}

// hierarchical splits at headings; sections that fit in one chunk are
// emitted whole and labelled with their heading level, larger sections
// fall through to semantic splitting.
func (e *Engine) hierarchical(text string) []Chunk {
	var chunks []Chunk
	for _, sec := range splitSections(text, 0) {
		content := strings.TrimSpace(text[sec.start:sec.end])
		if content == "" {
			continue
		}
		if sec.end-sec.start <= e.chunkSize {
			chunks = append(chunks, Chunk{
				Content:      content,
				Start:        sec.start,
				End:          sec.end,
				SectionKind:  SectionHeading,
				HeadingLevel: sec.level,
			})
			continue
		}
		sub := e.semantic(text[sec.start:sec.end], sec.start)
		for i := range sub {
			sub[i].HeadingLevel = sec.level
		}
		chunks = append(chunks, sub...)
	}
	return chunks
}

// syntaxAware emits a chunk only when the accumulated text exceeds the
// chunk size and brace depth has returned to zero, so function and class
// bodies are never split.
func (e *Engine) syntaxAware(text string) []Chunk {
	var chunks []Chunk
	depth := 0
	start := 0

	emit := func(end int) {
		content := text[start:end]
		if strings.TrimSpace(content) == "" {
			start = end
			return
		}
		chunks = append(chunks, Chunk{
			Content:     content,
			Start:       start,
			End:         end,
			SectionKind: SectionCode,
		})
		start = end
	}

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '\n':
			if i+1-start > e.chunkSize && depth == 0 {
				emit(i + 1)
			}
		}
	}
	if start < len(text) {
		emit(len(text))
	}
	return chunks
}

// markdownAware starts a new section at every heading of the same or
// shallower level than the current one; oversized sections get a plain
// size-based split.
func (e *Engine) markdownAware(text string) []Chunk {
	var chunks []Chunk
	for _, sec := range splitSections(text, 0) {
		content := strings.TrimSpace(text[sec.start:sec.end])
		if content == "" {
			continue
		}
		if sec.end-sec.start <= e.chunkSize {
			chunks = append(chunks, Chunk{
				Content:      content,
				Start:        sec.start,
				End:          sec.end,
				SectionKind:  SectionHeading,
				HeadingLevel: sec.level,
			})
			continue
		}
		inner := Engine{chunkSize: e.chunkSize, overlap: 0, strategy: StrategyFixed}
		sub := inner.fixed(text[sec.start:sec.end])
		for i := range sub {
			sub[i].Start += sec.start
			sub[i].End += sec.start
			sub[i].HeadingLevel = sec.level
		}
		chunks = append(chunks, sub...)
	}
	return chunks
}

type section struct {
	start, end int
	level      int
}

// splitSections cuts text at heading lines. Deeper headings than minLevel
// stay inside their parent section. Text before the first heading forms a
// level-0 section.
func splitSections(text string, minLevel int) []section {
	var sections []section
	cur := section{start: 0, level: 0}
	offset := 0

	for _, line := range strings.SplitAfter(text, "\n") {
		if lvl := headingLevel(line); lvl > minLevel {
			if offset > cur.start {
				cur.end = offset
				sections = append(sections, cur)
			}
			cur = section{start: offset, level: lvl}
		}
		offset += len(line)
	}
	cur.end = len(text)
	if cur.end > cur.start {
		sections = append(sections, cur)
	}
	return sections
}

// headingLevel returns the ATX heading level of a line, or 0.
func headingLevel(line string) int {
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0
	}
	if level < len(trimmed) && trimmed[level] != ' ' && trimmed[level] != '\t' {
		return 0
	}
	return level
}

type sentence struct {
	text       string
	start, end int
}

// splitSentences cuts text at sentence terminators followed by
// whitespace. Offsets are byte positions into text.
func splitSentences(text string) []sentence {
	var sentences []sentence
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}
		end := i + 1
		if c != '\n' && end < len(text) && !isSpaceByte(text[end]) {
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, sentence{text: s, start: start, end: end})
		}
		start = end
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, sentence{text: s, start: start, end: len(text)})
	}
	return sentences
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// lastWhitespace returns the index just past the last whitespace rune in
// s, or 0 when s has none.
func lastWhitespace(s string) int {
	for i := len(s); i > 0; {
		r, size := utf8.DecodeLastRuneInString(s[:i])
		if unicode.IsSpace(r) {
			return i
		}
		i -= size
	}
	return 0
}

// alignRune moves pos left to the nearest rune boundary.
func alignRune(s string, pos int) int {
	for pos > 0 && pos < len(s) && !utf8.RuneStart(s[pos]) {
		pos--
	}
	return pos
}
