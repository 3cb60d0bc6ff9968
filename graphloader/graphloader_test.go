package graphloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeCypher_FullPunctuationSet(t *testing.T) {
	in := "back\\slash 'quote' \"double\" \nnewline\ttab\rcr"
	out := escapeCypher(in)

	assert.Contains(t, out, `\\`)
	assert.Contains(t, out, `\'`)
	assert.Contains(t, out, `\"`)
	assert.Contains(t, out, `\n`)
	assert.Contains(t, out, `\t`)
	assert.Contains(t, out, `\r`)
	assert.NotContains(t, out, "\n")
	assert.NotContains(t, out, "\t")
	assert.NotContains(t, out, "\r")
}

func TestEscapeCypher_Empty(t *testing.T) {
	assert.Equal(t, "", escapeCypher(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel", truncate("hello", 3))
	assert.Equal(t, "", truncate("", 3))
}

func TestEntityIDMap_ResolveTarget_ByID(t *testing.T) {
	m := entityIDMap{
		byID:   map[string]int64{"e1": 100},
		byName: map[string][]int64{},
	}
	gid, ok := m.resolveTarget("e1")
	assert.True(t, ok)
	assert.Equal(t, int64(100), gid)
}

func TestEntityIDMap_ResolveTarget_ByName(t *testing.T) {
	m := entityIDMap{
		byID:   map[string]int64{},
		byName: map[string][]int64{"helper": {200, 201}},
	}
	gid, ok := m.resolveTarget("helper")
	assert.True(t, ok)
	assert.Equal(t, int64(200), gid)
}

func TestEntityIDMap_ResolveTarget_DottedNameFallback(t *testing.T) {
	m := entityIDMap{
		byID:   map[string]int64{},
		byName: map[string][]int64{"method": {300}},
	}
	gid, ok := m.resolveTarget("module.Class.method")
	assert.True(t, ok)
	assert.Equal(t, int64(300), gid)
}

func TestEntityIDMap_ResolveTarget_Unresolved(t *testing.T) {
	m := entityIDMap{byID: map[string]int64{}, byName: map[string][]int64{}}
	_, ok := m.resolveTarget("nonexistent")
	assert.False(t, ok)
}
