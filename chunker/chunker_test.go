package chunker

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	toks := make([]string, n)
	for i := range toks {
		toks[i] = "w" + strconv.Itoa(i)
	}
	return strings.Join(toks, " ")
}

func TestTextChunkerSplit_ShortTextSingleChunk(t *testing.T) {
	c := NewTextChunker(500, 50)
	chunks := c.Split("one two three")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].StartToken)
	assert.Equal(t, 3, chunks[0].EndToken)
	assert.Equal(t, 1, chunks[0].Total)
}

func TestTextChunkerSplit_EmptyText(t *testing.T) {
	c := NewTextChunker(500, 50)
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t "))
}

func TestTextChunkerSplit_OverlapAndCoverage(t *testing.T) {
	c := NewTextChunker(10, 2)
	chunks := c.Split(words(25))
	require.True(t, len(chunks) > 1)

	// every token is covered by at least one chunk
	for i := 0; i < 25; i++ {
		covered := false
		for _, ch := range chunks {
			if i >= ch.StartToken && i < ch.EndToken {
				covered = true
				break
			}
		}
		assert.True(t, covered, "token %d not covered by any chunk", i)
	}

	last := chunks[len(chunks)-1]
	assert.Equal(t, 25, last.EndToken)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, len(chunks), ch.Total)
	}
}

func TestNewTextChunker_DefaultsAndClamping(t *testing.T) {
	c := NewTextChunker(0, 0)
	assert.Equal(t, DefaultChunkSize, c.Size)
	assert.Equal(t, 0, c.Overlap)

	c2 := NewTextChunker(5, 5)
	assert.Less(t, c2.Overlap, c2.Size)
}

func TestSentenceAwareChunker_PrefersSentenceBoundary(t *testing.T) {
	text := "Alpha beta gamma delta epsilon zeta eta theta iota. Kappa lambda mu nu xi."
	c := NewSentenceAwareChunker(10, 1)
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	// the window would end after "Kappa"; the period one token earlier lies
	// within the size/5 = 2 token backoff, so the first chunk ends there
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."))
}

func TestSentenceAwareChunker_CoversAllTokens(t *testing.T) {
	c := NewSentenceAwareChunker(8, 2)
	text := words(30)
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 30, chunks[len(chunks)-1].EndToken)
}

func TestChunkEntity_ComposesAndTruncates(t *testing.T) {
	e := CodeEntityInput{
		EntityID:   "abc123",
		EntityType: "function",
		Signature:  "func Foo(x int) error",
		Docstring:  "Foo does a thing.",
		Body:       strings.Repeat("x", MaxEntityChunkChars),
	}
	ch := ChunkEntity(e)
	assert.LessOrEqual(t, len(ch.Text), MaxEntityChunkChars)
	assert.Equal(t, "abc123", ch.EntityID)
	assert.Equal(t, "function", ch.EntityType)
}

func TestChunkEntities_FiltersByType(t *testing.T) {
	entities := []CodeEntityInput{
		{EntityID: "1", EntityType: "function", Body: "a"},
		{EntityID: "2", EntityType: "variable", Body: "b"},
		{EntityID: "3", EntityType: "Class", Body: "c"},
	}
	chunks := ChunkEntities(entities)
	require.Len(t, chunks, 2)
	assert.Equal(t, "1", chunks[0].EntityID)
	assert.Equal(t, "3", chunks[1].EntityID)
}
