package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowsOverlap(t *testing.T) {
	e := New(WithStrategy(StrategyFixed), WithChunkSize(100), WithOverlap(20))
	text := strings.Repeat("alpha beta gamma delta epsilon ", 40)

	chunks := e.Chunk(text, "")
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End, "overlapping windows must not leave gaps")
	}
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}

func TestFixedBreaksAtWhitespace(t *testing.T) {
	e := New(WithStrategy(StrategyFixed), WithChunkSize(20), WithOverlap(0))
	chunks := e.Chunk("aaaa bbbb cccc dddd eeee ffff", "")

	require.Greater(t, len(chunks), 1)
	// A window with interior whitespace ends right after a space.
	assert.True(t, strings.HasSuffix(chunks[0].Content, " "))
}

func TestFixedNeverSplitsRunes(t *testing.T) {
	e := New(WithStrategy(StrategyFixed), WithChunkSize(10), WithOverlap(3))
	text := strings.Repeat("héllo wörld ", 30)

	for _, c := range e.Chunk(text, "") {
		assert.True(t, utf8.ValidString(c.Content), "chunk %q splits a rune", c.Content)
	}
}

func TestSemanticAccumulatesSentences(t *testing.T) {
	e := New(WithStrategy(StrategySemantic), WithChunkSize(80), WithOverlap(0))
	text := "The cache stores entries. The cache evicts entries. " +
		"The cache promotes entries. Demotion moves entries down. " +
		"Compression shrinks payloads. Decompression restores them."

	chunks := e.Chunk(text, "")
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].Start, chunks[i-1].End)
	}
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 80+80/2, "accumulator overran the budget")
	}
}

func TestHierarchicalLabelsSections(t *testing.T) {
	e := New(WithStrategy(StrategyHierarchical), WithChunkSize(200), WithOverlap(0))
	text := "# Title\nintro paragraph\n\n## Details\nmore text here\n"

	chunks := e.Chunk(text, "")
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].HeadingLevel)
	assert.Equal(t, 2, chunks[1].HeadingLevel)
	assert.Equal(t, SectionHeading, chunks[0].SectionKind)
}

func TestAdaptiveSelectsSyntaxAwareForCode(t *testing.T) {
	e := New(WithStrategy(StrategyAdaptive), WithChunkSize(60), WithOverlap(0))
	text := "```go\n" +
		"func a() {\n\tx := 1\n\ty := 2\n\tz := x + y\n\t_ = z\n}\n" +
		"func b() {\n\tfor i := 0; i < 10; i++ {\n\t\tprintln(i)\n\t}\n}\n" +
		"```\n"

	chunks := e.Chunk(text, "")
	require.NotEmpty(t, chunks)

	// Boundaries only at brace depth zero: every chunk is brace-balanced.
	for _, c := range chunks {
		assert.Equal(t, SectionCode, c.SectionKind)
		assert.Equal(t, strings.Count(c.Content, "{"), strings.Count(c.Content, "}"),
			"chunk split inside a brace scope: %q", c.Content)
	}
}

func TestAdaptiveLanguageTagForcesSyntaxAware(t *testing.T) {
	e := New(WithStrategy(StrategyAdaptive), WithChunkSize(50), WithOverlap(0))
	chunks := e.Chunk("fn main() { let x = 1; }\n", "rust")
	require.NotEmpty(t, chunks)
	assert.Equal(t, SectionCode, chunks[0].SectionKind)
}

func TestAdaptiveSelectsHierarchicalForHeadingHeavyText(t *testing.T) {
	e := New(WithStrategy(StrategyAdaptive), WithChunkSize(500), WithOverlap(0))
	text := "# One\nbody\n# Two\nbody\n# Three\nbody\n"

	chunks := e.Chunk(text, "")
	require.NotEmpty(t, chunks)
	assert.Equal(t, SectionHeading, chunks[0].SectionKind)
}

func TestMarkdownAwareSplitsOversizedSections(t *testing.T) {
	e := New(WithStrategy(StrategyMarkdownAware), WithChunkSize(50), WithOverlap(0))
	text := "# Big\n" + strings.Repeat("filler words here ", 20)

	chunks := e.Chunk(text, "")
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].Start, chunks[i-1].End)
	}
	for _, c := range chunks {
		assert.Equal(t, 1, c.HeadingLevel)
	}
}

func TestSemanticDensityFormula(t *testing.T) {
	// 4 words, all unique, 1 sentence: (4/4 + min(1, 4/20)) / 2 = 0.6
	assert.InDelta(t, 0.6, semanticDensity("one two three four."), 0.001)
	assert.Zero(t, semanticDensity(""))
}

func TestImportanceBonuses(t *testing.T) {
	base := &Chunk{Content: "plain", SectionKind: SectionText}
	assert.InDelta(t, 0.5+0.2*float64(5)/100, importance(base, 100), 0.001)

	heading := &Chunk{Content: "x", SectionKind: SectionHeading}
	assert.Greater(t, importance(heading, 100), 0.8)

	numeric := &Chunk{Content: "1 2 3 4 5 six", SectionKind: SectionText}
	assert.Greater(t, importance(numeric, 100), importance(base, 100))

	// Heading + code + full length + numerics caps at 1.
	maxed := &Chunk{
		Content:      strings.Repeat("7 ", 50),
		SectionKind:  SectionCode,
		HeadingLevel: 1,
	}
	assert.Equal(t, 1.0, importance(maxed, 10))
}

func TestEmptyInput(t *testing.T) {
	e := New()
	assert.Nil(t, e.Chunk("", ""))
}

func TestChunkMetadataAssigned(t *testing.T) {
	e := New(WithStrategy(StrategyFixed), WithChunkSize(50), WithOverlap(10))
	chunks := e.Chunk(strings.Repeat("some words in a row ", 10), "")

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, i, c.Position)
		assert.GreaterOrEqual(t, c.Density, 0.0)
		assert.LessOrEqual(t, c.Importance, 1.0)
	}
}
