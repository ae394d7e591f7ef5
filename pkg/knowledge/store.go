package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"kcexplore/pkg/kgraph"
	"kcexplore/pkg/logx"
)

// Store is the SQLite-backed knowledge store. The schema is created by
// persistence.Open.
type Store struct {
	db     *sql.DB
	logger *logx.Logger

	mu    sync.Mutex
	graph *Graph // cached LoadGraph result, reset on every insert
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: logx.NewLogger("knowledge")}
}

// RetrievalOptions configures knowledge retrieval.
type RetrievalOptions struct {
	Terms      string // Search terms (space-separated)
	MaxResults int    // Maximum direct matches per table (default: 20)
	Depth      int    // Neighbor depth (default: 0, only direct matches)
}

// RetrievalResult contains the retrieved knowledge.
type RetrievalResult struct {
	Text       string // KNOWLEDGE block for prompts
	Count      int    // Number of entities in Subgraph
	Statements []string
	Subgraph   *Graph
}

// Stats summarizes the store contents.
type Stats struct {
	Entities      int
	Relationships int
	Statements    int
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.graph = nil
	s.mu.Unlock()
}

// InsertCustomKG stores one entity/relationship document in a single transaction.
// An entity whose name already exists keeps its first type; a new non-empty
// description not already contained in the stored one is appended on its own line.
func (s *Store) InsertCustomKG(ctx context.Context, kg *kgraph.CustomKG) error {
	if kg == nil {
		return fmt.Errorf("knowledge graph is nil")
	}
	if err := kg.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge graph: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is safe to call after commit

	entityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kg_entities (name, type, description, source_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET description = CASE
			WHEN excluded.description = '' THEN kg_entities.description
			WHEN kg_entities.description = '' THEN excluded.description
			WHEN instr(kg_entities.description, excluded.description) > 0 THEN kg_entities.description
			ELSE kg_entities.description || char(10) || excluded.description
		END
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity statement: %w", err)
	}
	defer entityStmt.Close() //nolint:errcheck // Close in defer is safe

	for i := range kg.Entities {
		e := &kg.Entities[i]
		if _, execErr := entityStmt.ExecContext(ctx, e.Name, e.Type, e.Description, e.SourceID); execErr != nil {
			return fmt.Errorf("failed to insert entity %s: %w", e.Name, execErr)
		}
	}

	relStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO kg_relationships (src_name, tgt_name, description, keywords, weight, source_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare relationship statement: %w", err)
	}
	defer relStmt.Close() //nolint:errcheck // Close in defer is safe

	for i := range kg.Relationships {
		r := &kg.Relationships[i]
		if _, execErr := relStmt.ExecContext(ctx, r.SrcName, r.TgtName, r.Description, r.Keywords, r.Weight, r.SourceID); execErr != nil {
			return fmt.Errorf("failed to insert relationship %s->%s: %w", r.SrcName, r.TgtName, execErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.invalidate()

	s.logger.Info("inserted %d entities and %d relationships", len(kg.Entities), len(kg.Relationships))
	return nil
}

// InsertStatements stores free-text knowledge lines attributed to source.
// Blank statements are skipped. Returns the number stored.
func (s *Store) InsertStatements(ctx context.Context, source string, statements []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is safe to call after commit

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kg_statements (source, text) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Close in defer is safe

	n := 0
	for _, text := range statements {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if _, execErr := stmt.ExecContext(ctx, source, text); execErr != nil {
			return 0, fmt.Errorf("failed to insert statement: %w", execErr)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Info("inserted %d statements from %s", n, source)
	return n, nil
}

// Stats counts stored entities, relationships and statements.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM kg_entities),
			(SELECT COUNT(*) FROM kg_relationships),
			(SELECT COUNT(*) FROM kg_statements)
	`).Scan(&st.Entities, &st.Relationships, &st.Statements)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count knowledge: %w", err)
	}
	return st, nil
}

// Retrieve searches entities and statements with FTS5 and renders the matches,
// expanded by Depth neighbours, as a KNOWLEDGE block.
func (s *Store) Retrieve(ctx context.Context, options RetrievalOptions) (*RetrievalResult, error) {
	if options.MaxResults <= 0 {
		options.MaxResults = 20
	}
	if options.Depth < 0 {
		options.Depth = 0
	}

	query := ftsQuery(options.Terms)
	if query == "" {
		return &RetrievalResult{Subgraph: NewGraph()}, nil
	}

	names, err := s.queryStrings(ctx, `
		SELECT kg_entities.name
		FROM kg_entities_fts
		JOIN kg_entities ON kg_entities.id = kg_entities_fts.rowid
		WHERE kg_entities_fts MATCH ?
		ORDER BY kg_entities_fts.rank
		LIMIT ?
	`, query, options.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("entity search failed: %w", err)
	}

	statements, err := s.queryStrings(ctx, `
		SELECT kg_statements.text
		FROM kg_statements_fts
		JOIN kg_statements ON kg_statements.id = kg_statements_fts.rowid
		WHERE kg_statements_fts MATCH ?
		ORDER BY kg_statements_fts.rank
		LIMIT ?
	`, query, options.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("statement search failed: %w", err)
	}

	sub := NewGraph()
	if len(names) > 0 {
		graph, err := s.LoadGraph(ctx)
		if err != nil {
			return nil, err
		}
		sub = graph.Subgraph(names, options.Depth)
	}

	logx.Debug(ctx, "knowledge", "retrieved %d entities and %d statements for %q", len(sub.Nodes), len(statements), options.Terms)
	return &RetrievalResult{
		Text:       renderKnowledge(statements, sub),
		Count:      len(sub.Nodes),
		Statements: statements,
		Subgraph:   sub,
	}, nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// renderKnowledge lays out statements, then entities, then relationships.
func renderKnowledge(statements []string, g *Graph) string {
	var sb strings.Builder
	for _, st := range statements {
		sb.WriteString(st)
		sb.WriteByte('\n')
	}
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n.Description == "" {
			sb.WriteString(id)
		} else {
			sb.WriteString(id + ": " + strings.ReplaceAll(n.Description, "\n", " "))
		}
		sb.WriteByte('\n')
	}
	edges := make([]string, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, fmt.Sprintf("%s -> %s (%s)", e.FromID, e.ToID, e.Relation))
	}
	sort.Strings(edges)
	for _, e := range edges {
		sb.WriteString(e)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// LoadGraph loads the entire knowledge graph. The result is cached until
// the next insert and must not be modified.
func (s *Store) LoadGraph(ctx context.Context) (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph != nil {
		return s.graph, nil
	}

	graph := NewGraph()

	nodeRows, err := s.db.QueryContext(ctx, `SELECT name, type, description, source_id FROM kg_entities`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer nodeRows.Close() //nolint:errcheck // Close in defer is safe

	for nodeRows.Next() {
		node := &Node{}
		if scanErr := nodeRows.Scan(&node.ID, &node.Type, &node.Description, &node.SourceID); scanErr != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", scanErr)
		}
		graph.Nodes[node.ID] = node
	}
	if rowErr := nodeRows.Err(); rowErr != nil {
		return nil, fmt.Errorf("entity rows error: %w", rowErr)
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT src_name, tgt_name, description, keywords, weight
		FROM kg_relationships
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer edgeRows.Close() //nolint:errcheck // Close in defer is safe

	for edgeRows.Next() {
		edge := &Edge{}
		if scanErr := edgeRows.Scan(&edge.FromID, &edge.ToID, &edge.Relation, &edge.Keywords, &edge.Weight); scanErr != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", scanErr)
		}
		graph.Edges = append(graph.Edges, edge)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("relationship rows error: %w", err)
	}

	s.graph = graph
	return graph, nil
}
