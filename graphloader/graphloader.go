package graphloader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DarrenZal/koi-node/codeindex"
	"github.com/DarrenZal/koi-node/internal/metrics"
)

// DefaultGraphName matches the original's regen_graph, generalized to this
// project's naming.
const DefaultGraphName = "koi_code_graph"

// entityBatchSize and edgeBatchSize match code_graph.py's BATCH_SIZE (100)
// and the edge loader's hard-coded 500.
const (
	entityBatchSize = 100
	edgeBatchSize   = 500
)

var edgeLabels = []string{
	codeindex.EdgeCalls, codeindex.EdgeContains, codeindex.EdgeBelongsTo, codeindex.EdgeImports,
}

// Loader writes a codeindex scan's entities and edges into the Cypher-over-
// SQL property graph.
type Loader struct {
	pool      *pgxpool.Pool
	graphName string
}

// New returns a Loader bound to pool, using graphName or DefaultGraphName
// when empty.
func New(pool *pgxpool.Pool, graphName string) *Loader {
	if graphName == "" {
		graphName = DefaultGraphName
	}
	return &Loader{pool: pool, graphName: graphName}
}

// Setup loads the AGE extension, sets the search path, creates the graph if
// missing, and ensures every edge label this package uses has a backing
// table (AGE only materializes a label's table the first time Cypher
// references it, so an empty graph needs a throwaway create+delete per
// label, matching ensure_graph).
func (l *Loader) Setup(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, `LOAD 'age';`); err != nil {
		return fmt.Errorf("graphloader: load age extension: %w", err)
	}
	if _, err := l.pool.Exec(ctx, `SET search_path = ag_catalog, '$user', public;`); err != nil {
		return fmt.Errorf("graphloader: set search_path: %w", err)
	}

	var graphCount int
	if err := l.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ag_catalog.ag_graph WHERE name = $1`, l.graphName,
	).Scan(&graphCount); err != nil {
		return fmt.Errorf("graphloader: check graph exists: %w", err)
	}
	if graphCount == 0 {
		if _, err := l.pool.Exec(ctx, fmt.Sprintf(`SELECT create_graph('%s');`, l.graphName)); err != nil {
			return fmt.Errorf("graphloader: create graph: %w", err)
		}
	}

	for _, label := range edgeLabels {
		var labelCount int
		err := l.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM ag_catalog.ag_label WHERE name = $1
			AND graph = (SELECT graphid FROM ag_catalog.ag_graph WHERE name = $2)
		`, label, l.graphName).Scan(&labelCount)
		if err != nil || labelCount > 0 {
			continue
		}
		query := fmt.Sprintf(`
			SELECT * FROM cypher('%s', $$
				CREATE (a:_Dummy)-[r:%s]->(b:_Dummy)
				DELETE r, a, b
			$$) as (result agtype);
		`, l.graphName, label)
		// Best-effort: a concurrent loader may have created it already.
		_, _ = l.pool.Exec(ctx, query)
	}

	return nil
}

// LoadEntities batch-creates one node per entity, BATCH_SIZE at a time,
// falling back to one-at-a-time inserts when a batch fails.
func (l *Loader) LoadEntities(ctx context.Context, entities []codeindex.CodeEntity, runID string) (ok, failed int, err error) {
	for start := 0; start < len(entities); start += entityBatchSize {
		end := start + entityBatchSize
		if end > len(entities) {
			end = len(entities)
		}
		batch := entities[start:end]

		stmts := make([]string, len(batch))
		for i, e := range batch {
			stmts[i] = entityCreateStatement(e, runID)
		}
		query := fmt.Sprintf(`
			SELECT * FROM cypher('%s', $$
				%s
			$$) as (result agtype);
		`, l.graphName, strings.Join(stmts, " "))

		if _, execErr := l.pool.Exec(ctx, query); execErr == nil {
			ok += len(batch)
			continue
		}

		metrics.GraphLoadFallbacks.Inc()
		for _, e := range batch {
			single := fmt.Sprintf(`
				SELECT * FROM cypher('%s', $$
					%s
				$$) as (result agtype);
			`, l.graphName, entityCreateStatement(e, runID))
			if _, execErr := l.pool.Exec(ctx, single); execErr != nil {
				failed++
			} else {
				ok++
			}
		}
	}

	metrics.GraphEntitiesLoaded.WithLabelValues(repoOf(entities)).Set(float64(ok))
	return ok, failed, nil
}

func entityCreateStatement(e codeindex.CodeEntity, runID string) string {
	return fmt.Sprintf(`CREATE (:%s {
		entity_id: '%s', name: '%s', entity_type: '%s', file_path: '%s',
		line_start: %d, line_end: %d, language: '%s', repo: '%s',
		signature: '%s', params: '%s', return_type: '%s', docstring: '%s',
		receiver_type: '%s', extraction_method: '%s', extraction_run_id: '%s',
		module_name: '%s', module_path: '%s'
	})`,
		e.EntityType, escapeCypher(e.EntityID), escapeCypher(e.Name), escapeCypher(e.EntityType), escapeCypher(e.FilePath),
		e.LineStart, e.LineEnd, escapeCypher(e.Language), escapeCypher(e.Repo),
		escapeCypher(truncate(e.Signature, 500)), escapeCypher(truncate(e.Params, 200)),
		escapeCypher(truncate(e.ReturnType, 100)), escapeCypher(truncate(e.Docstring, 500)),
		escapeCypher(e.ReceiverType), escapeCypher(e.ExtractionMode), escapeCypher(runID),
		escapeCypher(e.ModuleName), escapeCypher(e.ModulePath),
	)
}

// entityIDMap is the (entity_id -> graph id, name -> graph ids) pair
// _load_entity_id_map builds to resolve edge endpoints without a lookup
// per edge.
type entityIDMap struct {
	byID   map[string]int64
	byName map[string][]int64
}

func (l *Loader) loadEntityIDMap(ctx context.Context) (entityIDMap, error) {
	query := fmt.Sprintf(`
		SELECT * FROM cypher('%s', $$
			MATCH (n)
			RETURN n.entity_id as entity_id, n.name as name, id(n) as graph_id
		$$) as (entity_id agtype, name agtype, graph_id agtype);
	`, l.graphName)

	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return entityIDMap{}, fmt.Errorf("graphloader: load entity id map: %w", err)
	}
	defer rows.Close()

	m := entityIDMap{byID: make(map[string]int64), byName: make(map[string][]int64)}
	for rows.Next() {
		var entityID, name, graphIDRaw string
		if err := rows.Scan(&entityID, &name, &graphIDRaw); err != nil {
			return entityIDMap{}, fmt.Errorf("graphloader: scan entity id map row: %w", err)
		}
		entityID = strings.Trim(entityID, `"`)
		name = strings.Trim(name, `"`)
		graphID, err := strconv.ParseInt(strings.Trim(graphIDRaw, `"`), 10, 64)
		if err != nil {
			continue
		}
		m.byID[entityID] = graphID
		m.byName[name] = append(m.byName[name], graphID)
	}
	return m, rows.Err()
}

// resolveTarget mirrors load_code_edges's fallback chain: entity_id lookup,
// then exact name lookup, then (for dotted names) a lookup on the last
// segment.
func (m entityIDMap) resolveTarget(toEntityID string) (int64, bool) {
	if gid, ok := m.byID[toEntityID]; ok {
		return gid, true
	}
	if gids, ok := m.byName[toEntityID]; ok && len(gids) > 0 {
		return gids[0], true
	}
	if idx := strings.LastIndex(toEntityID, "."); idx >= 0 {
		bare := toEntityID[idx+1:]
		if gids, ok := m.byName[bare]; ok && len(gids) > 0 {
			return gids[0], true
		}
	}
	return 0, false
}

type resolvedEdge struct {
	startID, endID int64
	edgeID         string
	lineNumber     int
}

// LoadEdges resolves every edge's endpoints via a freshly loaded entity ID
// map, groups by edge type, and batch-inserts each group straight into the
// label's backing table (parameterized, since this step is plain SQL
// rather than embedded Cypher text).
func (l *Loader) LoadEdges(ctx context.Context, entities []codeindex.CodeEntity, edges []codeindex.CodeEdge, runID string) (ok, failed int, err error) {
	idMap, err := l.loadEntityIDMap(ctx)
	if err != nil {
		return 0, 0, err
	}

	byType := make(map[string][]codeindex.CodeEdge)
	for _, e := range edges {
		byType[e.EdgeType] = append(byType[e.EdgeType], e)
	}

	var skipped int
	for edgeType, typeEdges := range byType {
		for start := 0; start < len(typeEdges); start += edgeBatchSize {
			end := start + edgeBatchSize
			if end > len(typeEdges) {
				end = len(typeEdges)
			}
			batch := typeEdges[start:end]

			var valid []resolvedEdge
			for _, e := range batch {
				sourceGID, sourceOK := idMap.byID[e.FromEntityID]
				if !sourceOK {
					skipped++
					continue
				}
				targetGID, targetOK := idMap.resolveTarget(e.ToEntityID)
				if !targetOK {
					skipped++
					continue
				}
				valid = append(valid, resolvedEdge{startID: sourceGID, endID: targetGID, edgeID: e.EdgeID, lineNumber: e.LineNumber})
			}
			if len(valid) == 0 {
				continue
			}

			if execErr := l.insertEdgeBatch(ctx, edgeType, valid, runID); execErr != nil {
				failed += len(valid)
				continue
			}
			ok += len(valid)
		}
	}

	if len(entities) > 0 {
		metrics.GraphEdgesLoaded.WithLabelValues(repoOf(entities)).Set(float64(ok))
	}
	return ok, failed, nil
}

func (l *Loader) insertEdgeBatch(ctx context.Context, edgeType string, edges []resolvedEdge, runID string) error {
	var placeholders []string
	args := make([]any, 0, len(edges)*3)
	for i, e := range edges {
		base := i * 3
		placeholders = append(placeholders, fmt.Sprintf(
			"(graphid_in($%d), graphid_in($%d), $%d::agtype)", base+1, base+2, base+3))
		props := fmt.Sprintf(`{"edge_id": %q, "line_number": %d, "extraction_run_id": %q}`, e.edgeID, e.lineNumber, runID)
		args = append(args, strconv.FormatInt(e.startID, 10), strconv.FormatInt(e.endID, 10), props)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s."%s" (start_id, end_id, properties) VALUES %s ON CONFLICT DO NOTHING`,
		l.graphName, edgeType, strings.Join(placeholders, ", "),
	)
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("graphloader: insert %s edges: %w", edgeType, err)
	}
	return nil
}

// Sweep removes every node for repo whose extraction_run_id doesn't match
// runID, i.e. everything left behind by a prior scan that the current one
// didn't touch (mark-and-sweep cleanup).
func (l *Loader) Sweep(ctx context.Context, repo, runID string) error {
	query := fmt.Sprintf(`
		SELECT * FROM cypher('%s', $$
			MATCH (n {repo: '%s'})
			WHERE n.extraction_run_id <> '%s'
			DETACH DELETE n
		$$) as (result agtype);
	`, l.graphName, escapeCypher(repo), escapeCypher(runID))
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("graphloader: sweep %s: %w", repo, err)
	}
	return nil
}

func repoOf(entities []codeindex.CodeEntity) string {
	if len(entities) == 0 {
		return ""
	}
	return entities[0].Repo
}
