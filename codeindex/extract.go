package codeindex

import "fmt"

// Extractor turns source text into a set of code entities and edges. The
// original extracted via tree-sitter ASTs; no Go tree-sitter binding was
// available to this project (see DESIGN.md), so Extractor line-scans with
// regular expressions instead. It recovers the same entity/edge shape at
// the cost of missing deeply nested or unusually formatted constructs.
type Extractor struct{}

// NewExtractor builds an Extractor. It carries no state -- every method is
// a pure function of its arguments -- but matches the original's
// class-based shape (TreeSitterExtractor) for callers that hold a
// long-lived reference across files.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract dispatches by language, returning the entities and edges found in
// content. Unsupported languages yield no entities or edges and an error
// naming the language; callers treat that as a skipped file, since a
// repository is expected to mix indexable and non-indexable files.
func (x *Extractor) Extract(language, content, filePath, repo string) ([]CodeEntity, []CodeEdge, error) {
	switch language {
	case "python":
		entities, edges := extractPython(content, filePath, repo)
		return entities, edges, nil
	case "typescript", "tsx", "javascript":
		entities, edges := extractTypeScript(content, filePath, repo, language)
		return entities, edges, nil
	case "sql":
		entities := extractSQL(content, filePath, repo)
		var edges []CodeEdge
		for _, e := range entities[1:] {
			edges = append(edges, CodeEdge{
				EdgeID:       GenerateEdgeID(entities[0].EntityID, e.EntityID, EdgeContains),
				FromEntityID: entities[0].EntityID,
				ToEntityID:   e.EntityID,
				EdgeType:     EdgeContains,
				FilePath:     filePath,
				LineNumber:   e.LineStart,
			})
		}
		return entities, edges, nil
	default:
		return nil, nil, fmt.Errorf("codeindex: unsupported language %q", language)
	}
}
