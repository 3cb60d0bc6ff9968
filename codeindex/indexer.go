package codeindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DarrenZal/koi-node/chunker"
	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/internal/metrics"
	"github.com/DarrenZal/koi-node/queue"
)

// DefaultScanInterval matches GITHUB_SCAN_INTERVAL's default (6 hours).
const DefaultScanInterval = 6 * time.Hour

// eventAdder is the subset of *queue.Queue the indexer depends on, to emit
// NEW/UPDATE events for every changed file.
type eventAdder interface {
	Add(ctx context.Context, eventType queue.EventType, rid string, manifest, contents json.RawMessage, sourceNode string, ttlHours int, eventID string, targetNode *string) (string, bool, error)
}

// graphLoader is the subset of *graphloader.Loader the indexer depends on.
type graphLoader interface {
	Setup(ctx context.Context) error
	LoadEntities(ctx context.Context, entities []CodeEntity, runID string) (ok, failed int, err error)
	LoadEdges(ctx context.Context, entities []CodeEntity, edges []CodeEdge, runID string) (ok, failed int, err error)
	Sweep(ctx context.Context, repo, runID string) error
}

// Indexer runs the background repository-scan loop (spec.md §4.7). One
// tick scans every active repo in turn; a failure on one repo is recorded
// against that repo's row and does not abort the others.
type Indexer struct {
	store        *Store
	extractor    *Extractor
	graph        graphLoader
	events       eventAdder
	cloneDir     string
	scanInterval time.Duration
	log          logger.Logger

	mu       sync.Mutex
	lastBeat time.Time
}

// New builds an Indexer.
func New(store *Store, graph graphLoader, events eventAdder, cloneDir string, scanInterval time.Duration, log logger.Logger) *Indexer {
	if scanInterval <= 0 {
		scanInterval = DefaultScanInterval
	}
	return &Indexer{
		store:        store,
		extractor:    NewExtractor(),
		graph:        graph,
		events:       events,
		cloneDir:     cloneDir,
		scanInterval: scanInterval,
		log:          log,
	}
}

// LastBeat reports when the indexer last completed a full scan of all
// active repos, used by health.TaskHealthCheck.
func (ix *Indexer) LastBeat() time.Time {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.lastBeat
}

// Run starts the scan loop and blocks until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(ix.scanInterval)
		defer ticker.Stop()
		ix.scanAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				ix.scanAll(ctx)
			}
		}
	})
	return g.Wait()
}

func (ix *Indexer) scanAll(ctx context.Context) {
	repos, err := ix.store.ActiveRepos(ctx)
	if err != nil {
		ix.log.Warn("codeindex: failed to list active repos", logger.Error(err))
		return
	}

	for _, repo := range repos {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := ix.ScanRepo(ctx, repo); err != nil {
			ix.log.Warn("codeindex: scan failed", logger.String("repo", repo.RepoName), logger.Error(err))
			if mErr := ix.store.MarkRepoError(ctx, repo.ID, err.Error()); mErr != nil {
				ix.log.Warn("codeindex: failed to record scan error", logger.Error(mErr))
			}
		}
	}

	ix.mu.Lock()
	ix.lastBeat = time.Now()
	ix.mu.Unlock()
}

// ScanRepo runs the full scan pipeline for one repository: clone/pull,
// enumerate, extract changed files, store artifacts, load the graph, sweep
// stale entities, and emit a queue event per changed file.
func (ix *Indexer) ScanRepo(ctx context.Context, repo Repo) (ScanResult, error) {
	start := time.Now()
	defer func() {
		metrics.CodeScanDuration.WithLabelValues(repo.RepoName).Observe(time.Since(start).Seconds())
	}()

	clonePath := filepath.Join(ix.cloneDir, strings.ReplaceAll(repo.RepoName, "/", "_"))
	headSHA, err := CloneOrPull(ctx, repo.CloneURL, clonePath, repo.Branch)
	if err != nil {
		return ScanResult{}, fmt.Errorf("codeindex: clone/pull %s: %w", repo.RepoName, err)
	}

	allFiles, err := FindFiles(clonePath)
	if err != nil {
		return ScanResult{}, fmt.Errorf("codeindex: find files %s: %w", repo.RepoName, err)
	}

	existingHashes, err := ix.store.ExistingHashes(ctx, repo.ID)
	if err != nil {
		return ScanResult{}, fmt.Errorf("codeindex: existing hashes %s: %w", repo.RepoName, err)
	}

	var allEntities []CodeEntity
	var allEdges []CodeEdge
	var fileResults []FileResult
	filesChanged := 0

	for _, abs := range allFiles {
		rel, err := filepath.Rel(clonePath, abs)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		content, ok, err := ReadFile(abs)
		if err != nil || !ok {
			continue
		}

		hash := ContentHash(content)
		_, existed := existingHashes[rel]
		if existingHashes[rel] == hash {
			continue
		}

		ext := strings.ToLower(filepath.Ext(abs))
		language := LanguageFor(ext)

		var entities []CodeEntity
		var edges []CodeEdge
		if CodeExtensions[ext] || ext == ".sql" {
			entities, edges, err = ix.extractor.Extract(language, content, rel, repo.RepoName)
			if err != nil {
				ix.log.Debug("codeindex: extraction skipped", logger.String("file", rel), logger.Error(err))
			}
		}
		allEntities = append(allEntities, entities...)
		allEdges = append(allEdges, edges...)

		chunkCount := len(chunker.ChunkEntities(toChunkerInputs(entities)))

		fileResults = append(fileResults, FileResult{
			RelPath:     rel,
			ContentHash: hash,
			Ext:         ext,
			Language:    language,
			LineCount:   strings.Count(content, "\n") + 1,
			ByteSize:    len(content),
			EntityCount: len(entities),
			ChunkCount:  chunkCount,
			GitMeta:     FileGitMetaFor(ctx, clonePath, rel),
			IsNewFile:   !existed,
		})
		filesChanged++
	}

	if filesChanged > 0 {
		metrics.CodeFilesChanged.WithLabelValues(repo.RepoName).Add(float64(filesChanged))
	}

	runID := runID(repo.RepoName)

	if err := ix.store.UpsertCodeArtifacts(ctx, allEntities, headSHA, runID); err != nil {
		return ScanResult{}, fmt.Errorf("codeindex: store artifacts %s: %w", repo.RepoName, err)
	}
	if len(allEntities) > 0 && ix.graph != nil {
		if err := ix.graph.Setup(ctx); err != nil {
			return ScanResult{}, fmt.Errorf("codeindex: graph setup %s: %w", repo.RepoName, err)
		}
		if _, _, err := ix.graph.LoadEntities(ctx, allEntities, runID); err != nil {
			ix.log.Warn("codeindex: load entities failed", logger.String("repo", repo.RepoName), logger.Error(err))
		}
		if len(allEdges) > 0 {
			if _, _, err := ix.graph.LoadEdges(ctx, allEntities, allEdges, runID); err != nil {
				ix.log.Warn("codeindex: load edges failed", logger.String("repo", repo.RepoName), logger.Error(err))
			}
		}
		if err := ix.graph.Sweep(ctx, repo.RepoName, runID); err != nil {
			ix.log.Warn("codeindex: sweep failed", logger.String("repo", repo.RepoName), logger.Error(err))
		}
	}

	if err := ix.store.UpsertCodeEdges(ctx, allEdges, repo.RepoName, runID); err != nil {
		ix.log.Warn("codeindex: store edges failed", logger.String("repo", repo.RepoName), logger.Error(err))
	}

	for _, fr := range fileResults {
		if err := ix.store.UpsertFileState(ctx, repo.ID, fr); err != nil {
			ix.log.Warn("codeindex: store file state failed", logger.String("file", fr.RelPath), logger.Error(err))
		}
		ix.emitEvent(ctx, repo.RepoName, fr)
	}

	if err := ix.store.MarkRepoScanned(ctx, repo.ID, headSHA); err != nil {
		ix.log.Warn("codeindex: mark repo scanned failed", logger.Error(err))
	}

	return ScanResult{
		Repo:         repo.RepoName,
		HeadSHA:      headSHA,
		FilesFound:   len(allFiles),
		FilesChanged: filesChanged,
		CodeEntities: len(allEntities),
		CodeEdges:    len(allEdges),
	}, nil
}

func (ix *Indexer) emitEvent(ctx context.Context, repoName string, fr FileResult) {
	if ix.events == nil {
		return
	}
	rid := fmt.Sprintf("github:%s:%s", repoName, fr.RelPath)
	eventType := queue.EventUpdate
	if fr.IsNewFile {
		eventType = queue.EventNew
	}
	manifest, _ := json.Marshal(map[string]any{"file_path": fr.RelPath, "language": fr.Language})
	contents, _ := json.Marshal(map[string]any{"content_hash": fr.ContentHash, "chunk_count": fr.ChunkCount})
	if _, _, err := ix.events.Add(ctx, eventType, rid, manifest, contents, "", 0, "", nil); err != nil {
		ix.log.Warn("codeindex: emit event failed", logger.String("rid", rid), logger.Error(err))
	}
}

func runID(repoName string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", repoName, time.Now().UnixNano())))
	return hex.EncodeToString(sum[:])[:16]
}

func toChunkerInputs(entities []CodeEntity) []chunker.CodeEntityInput {
	inputs := make([]chunker.CodeEntityInput, len(entities))
	for i, e := range entities {
		inputs[i] = chunker.CodeEntityInput{
			EntityID:   e.EntityID,
			Name:       e.Name,
			EntityType: strings.ToLower(e.EntityType),
			Signature:  e.Signature,
			Docstring:  e.Docstring,
			Body:       e.Signature,
		}
	}
	return inputs
}
