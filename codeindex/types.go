// Package codeindex implements the code indexer (C7): it clones or pulls
// monitored Git repositories, enumerates and hashes their files, extracts a
// lightweight property graph of code entities and edges from the changed
// ones, persists both the relational artifacts and the graph, and emits a
// queue event per changed file.
package codeindex

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Entity types mirror the original extractor's vocabulary (spec.md §3's
// Code Entity data model).
const (
	EntityFile      = "File"
	EntityModule    = "Module"
	EntityImport    = "Import"
	EntityClass     = "Class"
	EntityFunction  = "Function"
	EntityInterface = "Interface"
)

// Edge types mirror the original extractor's relationship vocabulary.
const (
	EdgeBelongsTo = "BELONGS_TO"
	EdgeContains  = "CONTAINS"
	EdgeCalls     = "CALLS"
	EdgeImports   = "IMPORTS"
)

// CodeEntity is one node in the code property graph -- a file, module,
// import, class, function, or interface -- with enough detail to render a
// useful artifact row and graph node.
type CodeEntity struct {
	EntityID       string
	Name           string
	EntityType     string
	FilePath       string
	LineStart      int
	LineEnd        int
	Language       string
	Repo           string
	Signature      string
	Params         string
	ReturnType     string
	Docstring      string
	ReceiverType   string
	ExtractionMode string // "regex_scan", matching the "extraction_method" column
	ModuleName     string
	ModulePath     string
}

// CodeEdge is one relationship between two code entities. ToEntityID may be
// a bare callee name rather than a resolved entity_id when the callee isn't
// known at extraction time; graphloader resolves those by name at load
// time, matching the original's deferred-resolution approach.
type CodeEdge struct {
	EdgeID       string
	FromEntityID string
	ToEntityID   string
	EdgeType     string
	FilePath     string
	LineNumber   int
}

// GenerateEntityID produces a deterministic 16-hex-char ID for an entity so
// repeated extraction runs converge on the same row instead of duplicating
// it (spec.md §3, ground on tree_sitter_extractor.py's generate_entity_id).
func GenerateEntityID(repo, filePath, name, signature string) string {
	key := fmt.Sprintf("%s:%s:%s:%s", repo, filePath, name, signature)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// GenerateEdgeID produces a deterministic 16-hex-char ID for an edge.
func GenerateEdgeID(fromID, toID, edgeType string) string {
	key := fmt.Sprintf("%s-%s->%s", fromID, edgeType, toID)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// FileGitMeta is the per-file commit metadata captured via `git log -1`
// (spec.md §4 supplemented features, ground on _get_file_git_meta).
type FileGitMeta struct {
	SHA     string
	Author  string
	Date    string
	Message string
}

// FileResult is everything learned about one changed file during a scan,
// carried forward to the storage and event-emission steps.
type FileResult struct {
	RelPath      string
	ContentHash  string
	Ext          string
	Language     string
	LineCount    int
	ByteSize     int
	EntityCount  int
	ChunkCount   int
	GitMeta      FileGitMeta
	IsNewFile    bool
}

// Repo is one row of github_repos.
type Repo struct {
	ID          int64
	RepoName    string
	CloneURL    string
	Branch      string
	Status      string
}

// ScanResult summarizes one completed repository scan, returned for
// logging and tests.
type ScanResult struct {
	Repo          string
	HeadSHA       string
	FilesFound    int
	FilesChanged  int
	CodeEntities  int
	CodeEdges     int
}
