// Package store implements mnemo's two persistent stores: the SQLite
// (FTS5) Metadata Store (spec.md §4.4) and the HNSW Vector Store
// (spec.md §4.5). Both are ported from the teacher's
// internal/store/sqlite_bm25.go and internal/store/hnsw.go.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/mnemo-dev/mnemo/internal/stemmer"
	"github.com/mnemo-dev/mnemo/internal/types"
)

// ftsMode selects how search_fts combines query terms.
type ftsMode string

const (
	ModeAnd    ftsMode = "and"
	ModeOr     ftsMode = "or"
	ModePhrase ftsMode = "phrase"
)

// ftsReservedChars must be quoted before reaching FTS5's MATCH parser.
const ftsReservedChars = `+*:^"()-`

// MetadataStore is the SQLite-backed relational store: files, entities,
// decisions, and the knowledge_fts virtual table. It follows the
// teacher's WAL-mode, single-writer-connection, busy_timeout pattern,
// widened to the 30-second lock wait spec.md §4.4/§5 mandates.
//
// The FTS half of the store (InsertFTS/DeleteFTSFor/SearchFTS) can run
// against either the SQLite FTS5 virtual table above or a Bleve index
// (internal/store/bleve_fts.go), selected by config.Search.BM25Backend
// (spec.md §4.4 names only "a local transactional engine with full-text
// search" and does not mandate which engine backs it; the teacher wires
// both, see DESIGN.md).
type MetadataStore struct {
	mu    sync.RWMutex
	db    *sql.DB
	path  string
	bleve *bleveFTS
}

// NewMetadataStore opens (and, if necessary, initializes) the metadata
// store at path using the default SQLite FTS5 backend. An empty path
// opens an in-memory store for tests.
func NewMetadataStore(path string) (*MetadataStore, error) {
	return NewMetadataStoreWithBackend(path, "sqlite")
}

// NewMetadataStoreWithBackend opens the metadata store at path, backing
// full-text search with either "sqlite" (FTS5 virtual table, default)
// or "bleve" (github.com/blevesearch/bleve/v2), per
// config.Search.BM25Backend. The files/entities/decisions schema is
// always SQLite-backed regardless of bm25_backend, since spec.md §4.4's
// relational operations (get_active_decisions, ratify_decision, ...)
// need a relational engine Bleve does not provide.
func NewMetadataStoreWithBackend(path, backend string) (*MetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		if err := validateIntegrity(path); err != nil {
			slog.Warn("metadata_store_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("metadata_store_cleared", slog.String("path", path))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000", // spec.md §4.4: 30-second lock timeout
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	ms := &MetadataStore{db: db, path: path}
	if err := ms.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if backend == "bleve" {
		bleveDir := ""
		if path != "" && path != ":memory:" {
			bleveDir = path + ".bleve"
		}
		idx, err := newBleveFTS(bleveDir)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open bleve fts index: %w", err)
		}
		ms.bleve = idx
	}

	return ms, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("corrupted: %s", result)
	}
	return nil
}

func (m *MetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);
	INSERT OR IGNORE INTO schema_version (version) VALUES (1);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		last_modified INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		processed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		context_preview TEXT,
		file_path TEXT NOT NULL,
		project TEXT NOT NULL,
		valid_from INTEGER,
		valid_to INTEGER,
		superseded_by TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_file ON entities(file_path);
	CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

	CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
		path UNINDEXED,
		content,
		stemmed,
		project UNINDEXED,
		start_line UNINDEXED,
		end_line UNINDEXED,
		tokenize='unicode61'
	);
	`
	_, err := m.db.Exec(schema)
	return err
}

// execer abstracts *sql.DB and *sql.Tx for statements shared between
// the autocommit methods and ApplyIngest's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertFile atomically inserts or updates a File row.
func (m *MetadataStore) UpsertFile(ctx context.Context, f types.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return upsertFile(ctx, m.db, f)
}

func upsertFile(ctx context.Context, db execer, f types.File) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO files(path, project, last_modified, content_hash, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			project=excluded.project,
			last_modified=excluded.last_modified,
			content_hash=excluded.content_hash,
			processed_at=excluded.processed_at`,
		f.Path, f.Project, f.LastModTime.Unix(), f.ContentHash, f.ProcessedAt.Unix())
	return err
}

// DeleteFTSFor removes all FTS rows for path. Called paired with
// InsertFTS inside one ingest transaction (see internal/ingestor).
func (m *MetadataStore) DeleteFTSFor(ctx context.Context, path string) error {
	if m.bleve != nil {
		return m.bleve.DeleteFor(ctx, path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.ExecContext(ctx, `DELETE FROM knowledge_fts WHERE path = ?`, path)
	return err
}

// InsertFTS inserts one chunk row into the FTS index.
func (m *MetadataStore) InsertFTS(ctx context.Context, path, content, stemmed, project string, startLine, endLine int) error {
	if m.bleve != nil {
		return m.bleve.Insert(ctx, path, content, stemmed, project, startLine, endLine)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return insertFTS(ctx, m.db, path, content, stemmed, project, startLine, endLine)
}

func insertFTS(ctx context.Context, db execer, path, content, stemmed, project string, startLine, endLine int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO knowledge_fts(path, content, stemmed, project, start_line, end_line)
		VALUES (?, ?, ?, ?, ?, ?)`, path, content, stemmed, project, startLine, endLine)
	return err
}

// FTSHit is one row returned by SearchFTS.
type FTSHit struct {
	Path      string
	Content   string
	StartLine int
	EndLine   int
	Score     float64
}

// escapeFTSToken wraps any token containing an FTS5 reserved character
// in double quotes so it is treated as a literal phrase term.
func escapeFTSToken(tok string) string {
	if strings.ContainsAny(tok, ftsReservedChars) {
		return `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
	}
	return tok
}

func buildMatchQuery(stemmedQuery string, mode ftsMode) string {
	tokens := strings.Fields(stemmedQuery)
	for i, t := range tokens {
		tokens[i] = escapeFTSToken(t)
	}
	switch mode {
	case ModePhrase:
		return `"` + strings.Join(tokens, " ") + `"`
	case ModeOr:
		return strings.Join(tokens, " OR ")
	default: // and
		return strings.Join(tokens, " AND ")
	}
}

// SearchFTS runs an FTS5 MATCH query over the stemmed column. When mode
// is "and" and zero rows come back, the caller is expected to retry in
// "or" mode per spec.md §4.4 — this method does not auto-retry itself so
// callers can distinguish a true empty result from a transparent
// widening (the Retriever performs the retry, see internal/retriever).
func (m *MetadataStore) SearchFTS(ctx context.Context, stemmedQuery, project string, limit int, mode ftsMode) ([]FTSHit, error) {
	if m.bleve != nil {
		return m.bleve.Search(ctx, stemmedQuery, project, limit, mode)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if strings.TrimSpace(stemmedQuery) == "" {
		return nil, nil
	}
	matchQuery := buildMatchQuery(stemmedQuery, mode)

	query := `
		SELECT path, content, start_line, end_line, bm25(knowledge_fts) as score
		FROM knowledge_fts
		WHERE knowledge_fts MATCH ?`
	args := []any{matchQuery}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("search_fts: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.Path, &h.Content, &h.StartLine, &h.EndLine, &h.Score); err != nil {
			return nil, err
		}
		h.Score = -h.Score // FTS5 bm25() is negative-is-better
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchEntities is a LIKE-based literal-substring fallback.
func (m *MetadataStore) SearchEntities(ctx context.Context, substring string, entityType types.EntityType, project string, limit int) ([]types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := `SELECT id, type, content, context_preview, file_path, project, valid_from, valid_to, superseded_by, created_at
		FROM entities WHERE content LIKE ?`
	args := []any{"%" + substring + "%"}
	if entityType != "" {
		query += ` AND type = ?`
		args = append(args, string(entityType))
	}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	return m.queryEntities(ctx, query, args...)
}

// GetActiveDecisions returns decisions valid on date (NULL endpoints
// treated as +/-infinity).
func (m *MetadataStore) GetActiveDecisions(ctx context.Context, date time.Time, project string) ([]types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ts := date.Unix()
	query := `SELECT id, type, content, context_preview, file_path, project, valid_from, valid_to, superseded_by, created_at
		FROM entities
		WHERE type = 'decision'
		  AND (valid_from IS NULL OR valid_from <= ?)
		  AND (valid_to IS NULL OR valid_to >= ?)`
	args := []any{ts, ts}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	return m.queryEntities(ctx, query, args...)
}

// GetDecisionHistory walks the superseded_by chain both directions from
// id and returns the full chain in chronological (oldest-first) order —
// the "Decision history" supplemented feature (SPEC_FULL.md).
func (m *MetadataStore) GetDecisionHistory(ctx context.Context, id string) ([]types.Entity, error) {
	all, err := m.allDecisions(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]types.Entity, len(all))
	supersededFrom := make(map[string]string, len(all)) // newID -> oldID
	for _, e := range all {
		byID[e.ID] = e
		if e.SupersededBy != nil {
			supersededFrom[*e.SupersededBy] = e.ID
		}
	}

	start, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("decision %s not found", id)
	}

	// Walk backward to the oldest ancestor. Acyclic per spec.md
	// invariant 4 (bounded by len(all) steps).
	oldest := start
	for steps := 0; steps < len(all); steps++ {
		prevID, ok := supersededFrom[oldest.ID]
		if !ok {
			break
		}
		oldest = byID[prevID]
	}

	// Walk forward collecting the chain.
	chain := []types.Entity{oldest}
	current := oldest
	for steps := 0; steps < len(all); steps++ {
		if current.SupersededBy == nil {
			break
		}
		next, ok := byID[*current.SupersededBy]
		if !ok {
			break
		}
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}

func (m *MetadataStore) allDecisions(ctx context.Context) ([]types.Entity, error) {
	return m.queryEntities(ctx, `SELECT id, type, content, context_preview, file_path, project, valid_from, valid_to, superseded_by, created_at FROM entities WHERE type = 'decision'`)
}

func (m *MetadataStore) queryEntities(ctx context.Context, query string, args ...any) ([]types.Entity, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		var e types.Entity
		var validFrom, validTo sql.NullInt64
		var supersededBy sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Type, &e.Content, &e.ContextPreview, &e.FilePath, &e.Project,
			&validFrom, &validTo, &supersededBy, &createdAt); err != nil {
			return nil, err
		}
		if validFrom.Valid {
			t := time.Unix(validFrom.Int64, 0)
			e.ValidFrom = &t
		}
		if validTo.Valid {
			t := time.Unix(validTo.Int64, 0)
			e.ValidTo = &t
		}
		if supersededBy.Valid {
			e.SupersededBy = &supersededBy.String
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentEntities returns up to limit entities ordered most-recent-first,
// shaped as types.Candidate for FastPath's warmup sampler
// (internal/fastpath.EntitySource).
func (m *MetadataStore) RecentEntities(ctx context.Context, limit int) ([]types.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, content, file_path FROM entities
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Candidate
	for rows.Next() {
		var c types.Candidate
		if err := rows.Scan(&c.ID, &c.Content, &c.SourcePath); err != nil {
			return nil, err
		}
		c.Method = []types.Method{types.MethodEntity}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertEntity inserts or replaces an entity row.
func (m *MetadataStore) UpsertEntity(ctx context.Context, e types.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return upsertEntity(ctx, m.db, e)
}

func upsertEntity(ctx context.Context, db execer, e types.Entity) error {
	var validFrom, validTo sql.NullInt64
	if e.ValidFrom != nil {
		validFrom = sql.NullInt64{Int64: e.ValidFrom.Unix(), Valid: true}
	}
	if e.ValidTo != nil {
		validTo = sql.NullInt64{Int64: e.ValidTo.Unix(), Valid: true}
	}
	var supersededBy sql.NullString
	if e.SupersededBy != nil {
		supersededBy = sql.NullString{String: *e.SupersededBy, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO entities(id, type, content, context_preview, file_path, project, valid_from, valid_to, superseded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, content=excluded.content, context_preview=excluded.context_preview,
			file_path=excluded.file_path, project=excluded.project,
			valid_from=excluded.valid_from, valid_to=excluded.valid_to, superseded_by=excluded.superseded_by`,
		e.ID, string(e.Type), e.Content, e.ContextPreview, e.FilePath, e.Project,
		validFrom, validTo, supersededBy, e.CreatedAt.Unix())
	return err
}

// DeleteEntitiesFor removes all entities extracted from path.
func (m *MetadataStore) DeleteEntitiesFor(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.ExecContext(ctx, `DELETE FROM entities WHERE file_path = ?`, path)
	return err
}

// IngestChunk is one chunk row ApplyIngest writes into the FTS index.
type IngestChunk struct {
	Content   string
	Stemmed   string
	StartLine int
	EndLine   int
}

// ApplyIngest replaces f.Path's FTS rows and entities and upserts its
// File row as one unit: a single transaction, with the writer lock held
// throughout, so no reader ever observes the file half-updated (spec.md
// §4.4's delete+insert pair, §4.10 step 3, §5's ordering guarantee).
// commitVectors, when non-nil, runs after the statements but before the
// commit — a Vector Store failure rolls the metadata transaction back,
// keeping the two stores in lockstep. With the Bleve backend the FTS
// writes are not transactional, but they still happen under the same
// writer lock, which serializes them against this store's SQL readers.
func (m *MetadataStore) ApplyIngest(ctx context.Context, f types.File, chunks []IngestChunk, entities []types.Entity, commitVectors func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if m.bleve != nil {
		if err := m.bleve.DeleteFor(ctx, f.Path); err != nil {
			return fmt.Errorf("delete fts rows: %w", err)
		}
		for _, c := range chunks {
			if err := m.bleve.Insert(ctx, f.Path, c.Content, c.Stemmed, f.Project, c.StartLine, c.EndLine); err != nil {
				return fmt.Errorf("insert fts chunk %d-%d: %w", c.StartLine, c.EndLine, err)
			}
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_fts WHERE path = ?`, f.Path); err != nil {
			return fmt.Errorf("delete fts rows: %w", err)
		}
		for _, c := range chunks {
			if err := insertFTS(ctx, tx, f.Path, c.Content, c.Stemmed, f.Project, c.StartLine, c.EndLine); err != nil {
				return fmt.Errorf("insert fts chunk %d-%d: %w", c.StartLine, c.EndLine, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE file_path = ?`, f.Path); err != nil {
		return fmt.Errorf("delete entities: %w", err)
	}
	for _, e := range entities {
		if err := upsertEntity(ctx, tx, e); err != nil {
			return fmt.Errorf("insert entity %s: %w", e.ID, err)
		}
	}
	if err := upsertFile(ctx, tx, f); err != nil {
		return fmt.Errorf("upsert file row: %w", err)
	}

	if commitVectors != nil {
		if err := commitVectors(); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RatifyDecision performs a partial update of an existing decision row.
// Returns an error if id is absent, per spec.md §4.4.
func (m *MetadataStore) RatifyDecision(ctx context.Context, id string, validFrom, validTo *time.Time, supersededBy *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var exists int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("decision %s not found", id)
	}

	if validFrom != nil {
		if _, err := m.db.ExecContext(ctx, `UPDATE entities SET valid_from = ? WHERE id = ?`, validFrom.Unix(), id); err != nil {
			return err
		}
	}
	if validTo != nil {
		if _, err := m.db.ExecContext(ctx, `UPDATE entities SET valid_to = ? WHERE id = ?`, validTo.Unix(), id); err != nil {
			return err
		}
	}
	if supersededBy != nil {
		if _, err := m.db.ExecContext(ctx, `UPDATE entities SET superseded_by = ? WHERE id = ?`, *supersededBy, id); err != nil {
			return err
		}
	}
	return nil
}

// SupersedeDecision atomically closes oldID's validity on validFrom and
// inserts a new decision row with newText, linking the two. Emits one
// decision_superseded archive event via the caller (the Ingestor/API
// layer holds the Archive Log handle, not the store).
func (m *MetadataStore) SupersedeDecision(ctx context.Context, oldID, newID, newText, project, filePath string, validFrom time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE id = ?`, oldID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("decision %s not found", oldID)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE entities SET valid_to = ?, superseded_by = ? WHERE id = ?`,
		validFrom.Unix(), newID, oldID); err != nil {
		return fmt.Errorf("close old decision: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entities(id, type, content, context_preview, file_path, project, valid_from, valid_to, superseded_by, created_at)
		VALUES (?, 'decision', ?, ?, ?, ?, ?, NULL, NULL, ?)`,
		newID, newText, truncate(newText, 120), filePath, project, validFrom.Unix(), time.Now().Unix()); err != nil {
		return fmt.Errorf("insert new decision: %w", err)
	}

	return tx.Commit()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// StemQuery stems query text the same way chunks are stemmed at ingest
// (spec.md §4.4's search_fts takes an already-stemmed query).
func StemQuery(query string, mode stemmer.Mode) string {
	return stemmer.StemText(query, mode)
}

// WipeAll truncates every table, used by the rebuild-from-archive
// operation before replaying archive.jsonl.
func (m *MetadataStore) WipeAll(ctx context.Context) error {
	if m.bleve != nil {
		if err := m.bleve.Wipe(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stmt := range []string{`DELETE FROM files`, `DELETE FROM entities`, `DELETE FROM knowledge_fts`} {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RowCounts returns the row count of each table, for the rebuild
// round-trip property test (spec.md §8 invariant 8).
func (m *MetadataStore) RowCounts(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[string]int{}
	for _, table := range []string{"files", "entities", "knowledge_fts"} {
		var c int
		if err := m.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&c); err != nil {
			return nil, err
		}
		counts[table] = c
	}
	return counts, nil
}

// Close checkpoints the WAL and closes the underlying connection.
func (m *MetadataStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	dbErr := m.db.Close()
	if m.bleve != nil {
		if err := m.bleve.Close(); err != nil && dbErr == nil {
			return err
		}
	}
	return dbErr
}
