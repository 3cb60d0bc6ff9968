package chunker

import "strings"

// MaxEntityChunkChars is the hard cap the original processor applied to a
// composed code-entity record before it degrades into a plain-text split
// (spec.md §4.9): signature + docstring + body easily exceeds a sane
// embedding input for large functions, so anything past this is truncated.
const MaxEntityChunkChars = 1500

// CodeEntityInput is the minimal shape a code entity needs to expose to be
// chunked -- callers (codeindex) adapt their own entity type into this one
// shot, keeping chunker free of a dependency on codeindex's types.
type CodeEntityInput struct {
	EntityID   string
	Name       string
	EntityType string // function, class, module, interface, ...
	Signature  string
	Docstring  string
	Body       string
}

// EntityAwareChunk is a single chunk derived from one code entity, carrying
// enough provenance to link back to the entity it came from.
type EntityAwareChunk struct {
	Chunk
	EntityID   string
	EntityType string
}

// ChunkEntity composes one entity into a single record -- signature, then
// docstring, then body -- and emits exactly one chunk capped at
// MaxEntityChunkChars. Larger entities are truncated rather than split,
// since a half-body chunk embeds worse than a clipped-but-coherent one.
func ChunkEntity(e CodeEntityInput) EntityAwareChunk {
	var b strings.Builder
	if e.Signature != "" {
		b.WriteString(e.Signature)
		b.WriteString("\n")
	}
	if e.Docstring != "" {
		b.WriteString(e.Docstring)
		b.WriteString("\n")
	}
	b.WriteString(e.Body)

	text := b.String()
	if len(text) > MaxEntityChunkChars {
		text = text[:MaxEntityChunkChars]
	}

	return EntityAwareChunk{
		Chunk: Chunk{
			Text:  text,
			Index: 0,
			Total: 1,
		},
		EntityID:   e.EntityID,
		EntityType: e.EntityType,
	}
}

// ChunkEntities applies ChunkEntity to every entity whose type is one of
// the structural kinds worth embedding on its own (function, class, module,
// interface); other entity types are skipped, mirroring the original
// ingestion path's entity-level selection.
func ChunkEntities(entities []CodeEntityInput) []EntityAwareChunk {
	chunkable := map[string]bool{
		"function":  true,
		"class":     true,
		"module":    true,
		"interface": true,
	}

	var out []EntityAwareChunk
	for _, e := range entities {
		if !chunkable[strings.ToLower(e.EntityType)] {
			continue
		}
		out = append(out, ChunkEntity(e))
	}
	return out
}
