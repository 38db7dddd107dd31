// Package ingestor implements spec.md §4.10: turning a file on disk
// into stemmed+raw FTS rows, entities, and chunk/entity vectors, all
// inside one Metadata Store transaction boundary, followed by an
// Archive Log event and an optional proactive-analysis enqueue.
// Grounded on the teacher's internal/scanner (directory walk + noise
// skip list) and internal/chunk (line-budget chunking) packages.
package ingestor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mnemo-dev/mnemo/internal/archive"
	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/extractor"
	"github.com/mnemo-dev/mnemo/internal/fastpath"
	"github.com/mnemo-dev/mnemo/internal/stemmer"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/types"
)

const chunkCharBudget = 1000

// noiseDirs are skipped outright during a recursive directory scan.
var noiseDirs = map[string]bool{
	"node_modules": true, ".git": true, "venv": true, ".venv": true,
	"__pycache__": true, "dist": true, "build": true, "data": true,
	"logs": true, ".idea": true, ".vscode": true, "target": true,
}

// allowedExt is the file-type allowlist. A file whose extension is not
// listed, including an extensionless file such as Makefile or
// Dockerfile, is not ingested.
var allowedExt = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".md": true, ".txt": true, ".yaml": true, ".yml": true, ".json": true,
	".rs": true, ".java": true, ".c": true, ".h": true, ".cpp": true, ".sh": true,
}

// AnalysisQueue is the narrow interface the Ingestor uses to enqueue a
// proactive-analysis side task, satisfied by internal/jobqueue.Queue.
type AnalysisQueue interface {
	Submit(ctx context.Context, jobType string, params map[string]any, priority int) (string, error)
}

// Ingestor wires together the stores, stemmer, extractor, archive log,
// and FastPath invalidation that every ingest pass must touch.
type Ingestor struct {
	meta     *store.MetadataStore
	vectors  *store.VectorStore
	fastpath *fastpath.Index
	embedder embed.Embedder
	archive  *archive.Log
	analysis AnalysisQueue

	stemMode          stemmer.Mode
	analysisEnabled   bool
	blacklistPatterns []string
}

func New(meta *store.MetadataStore, vectors *store.VectorStore, fp *fastpath.Index, embedder embed.Embedder, archiveLog *archive.Log, analysis AnalysisQueue, stemMode stemmer.Mode, analysisEnabled bool, blacklist []string) *Ingestor {
	return &Ingestor{
		meta: meta, vectors: vectors, fastpath: fp, embedder: embedder,
		archive: archiveLog, analysis: analysis,
		stemMode: stemMode, analysisEnabled: analysisEnabled, blacklistPatterns: blacklist,
	}
}

// lineChunk is one line-ranged slice produced by chunkByLines.
type lineChunk struct {
	content   string
	startLine int
	endLine   int
}

// chunkByLines fills chunks up to chunkCharBudget chars without ever
// splitting a line (spec.md §4.10 step 2).
func chunkByLines(text string) []lineChunk {
	lines := strings.Split(text, "\n")
	var chunks []lineChunk
	var cur strings.Builder
	start := 1

	flush := func(end int) {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, lineChunk{content: cur.String(), startLine: start, endLine: end})
		cur.Reset()
	}

	for i, line := range lines {
		lineNo := i + 1
		if cur.Len() > 0 && cur.Len()+len(line)+1 > chunkCharBudget {
			flush(lineNo - 1)
			start = lineNo
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush(len(lines))
	return chunks
}

// detectAndDecode reads path, stripping a UTF-8/UTF-16 BOM if present
// and replacing invalid byte sequences, per spec.md §4.10 step 1.
func detectAndDecode(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		raw = raw[3:]
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		// UTF-16 BOM without a transcoder dependency in the example
		// corpus: fall through to lossy UTF-8 repair below, which at
		// least yields a non-fatal, searchable (if imperfect) result.
		raw = raw[2:]
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}
	return strings.ToValidUTF8(string(raw), "�"), nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IngestFile implements spec.md §4.10's per-file steps 1-6.
func (ing *Ingestor) IngestFile(ctx context.Context, path, project string) error {
	text, err := detectAndDecode(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	hash := contentHash(text)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	chunks := chunkByLines(text)

	// Embed every chunk before touching either store: spec.md §5 forbids
	// a query ever observing a half-updated file (partial FTS + partial
	// Vector Store). Computing all embeddings up front means a single
	// failed Embed call aborts the whole ingest before any old rows are
	// deleted, instead of leaving FTS refreshed with no matching vectors.
	now := time.Now()
	stemMode := ing.stemMode
	type preparedChunk struct {
		lineChunk
		stemmed string
		vector  []float32
	}
	prepared := make([]preparedChunk, len(chunks))
	for i, c := range chunks {
		prepared[i] = preparedChunk{lineChunk: c, stemmed: stemmer.StemText(c.content, stemMode)}
		if ing.embedder != nil {
			vec, err := ing.embedder.Embed(ctx, c.content)
			if err != nil {
				return fmt.Errorf("embed chunk %s:%d-%d: %w", path, c.startLine, c.endLine, err)
			}
			prepared[i].vector = vec
		}
	}

	entities := collectEntities(extractor.Extract(text), path, project)
	entityVectors := make([][]float32, len(entities))
	if ing.embedder != nil {
		for i, e := range entities {
			vec, err := ing.embedder.Embed(ctx, e.Content)
			if err != nil {
				return fmt.Errorf("embed entity %s: %w", e.ID, err)
			}
			entityVectors[i] = vec
		}
	}

	ftsChunks := make([]store.IngestChunk, len(prepared))
	var vecIDs []string
	var vecVectors [][]float32
	var vecDocs []string
	var vecMetas []store.VectorMeta
	for i, c := range prepared {
		ftsChunks[i] = store.IngestChunk{Content: c.content, Stemmed: c.stemmed, StartLine: c.startLine, EndLine: c.endLine}
		if c.vector != nil {
			vecIDs = append(vecIDs, fmt.Sprintf("%s#%d-%d", path, c.startLine, c.endLine))
			vecVectors = append(vecVectors, c.vector)
			vecDocs = append(vecDocs, c.content)
			vecMetas = append(vecMetas, store.VectorMeta{
				Source: path, Project: project, Type: "chunk",
				StartLine: c.startLine, EndLine: c.endLine,
				ContentHash: contentHash(c.content), IndexedAt: now,
			})
		}
	}
	for i, e := range entities {
		if entityVectors[i] == nil {
			continue
		}
		vecIDs = append(vecIDs, "entity:"+e.ID)
		vecVectors = append(vecVectors, entityVectors[i])
		vecDocs = append(vecDocs, e.Content)
		vecMetas = append(vecMetas, store.VectorMeta{
			Source: path, Project: project, Type: "entity",
			ContentHash: contentHash(e.Content), IndexedAt: now,
		})
	}

	fileRow := types.File{
		Path: path, Project: project, LastModTime: info.ModTime(), ContentHash: hash, ProcessedAt: time.Now(),
	}

	// The vector-store swap runs inside ApplyIngest's unit of work: the
	// old vectors are dropped and the new ones added before the metadata
	// transaction commits, so a vector failure rolls everything back
	// (spec.md §5).
	commitVectors := func() error {
		if err := ing.vectors.DeletePrefix(ctx, path); err != nil {
			return fmt.Errorf("delete old chunk vectors for %s: %w", path, err)
		}
		// Entity vectors are keyed "entity:<uuid>", not by path, so the
		// prefix delete above misses them; drop them by source metadata.
		if err := ing.vectors.DeleteWhere(ctx, func(m store.VectorMeta) bool {
			return m.Source == path && m.Type == "entity"
		}); err != nil {
			return fmt.Errorf("delete old entity vectors for %s: %w", path, err)
		}
		if len(vecIDs) == 0 {
			return nil
		}
		return ing.vectors.Add(ctx, vecIDs, vecVectors, vecDocs, vecMetas)
	}
	if ing.vectors == nil {
		commitVectors = nil
	}

	if err := ing.meta.ApplyIngest(ctx, fileRow, ftsChunks, entities, commitVectors); err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}
	entityCount := len(entities)

	if ing.fastpath != nil {
		for _, c := range chunks {
			ing.fastpath.Insert(firstLine(c.content), types.Candidate{
				ID: fmt.Sprintf("%s#%d-%d", path, c.startLine, c.endLine), Content: c.content,
				SourcePath: path, StartLine: c.startLine, EndLine: c.endLine,
				LastModified: info.ModTime(), ContentHash: hash,
			})
		}
	}

	if ing.archive != nil {
		if err := ing.archive.Append(archive.EventFileProcessed, map[string]any{
			"path": path, "project": project, "chunks": len(chunks), "entities": entityCount, "content_hash": hash,
		}); err != nil {
			return fmt.Errorf("archive file_processed for %s: %w", path, err)
		}
	}

	if ing.analysisEnabled && ing.analysis != nil {
		if _, err := ing.analysis.Submit(ctx, "proactive_analysis", map[string]any{"path": path, "project": project}, 3); err != nil {
			return fmt.Errorf("enqueue proactive analysis for %s: %w", path, err)
		}
	}

	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// collectEntities turns an extraction result into the entity rows one
// ingest writes, assigning fresh IDs; decisions carry their temporal
// metadata, code snippets their language tag plus truncated preview.
func collectEntities(extracted extractor.Result, path, project string) []types.Entity {
	var entities []types.Entity
	add := func(kind types.EntityType, content string) {
		entities = append(entities, types.Entity{
			ID: uuid.NewString(), Type: kind, Content: content,
			FilePath: path, Project: project, CreatedAt: time.Now(),
		})
	}
	for _, e := range extracted.Problems {
		add(types.EntityProblem, e.Content)
	}
	for _, e := range extracted.Solutions {
		add(types.EntitySolution, e.Content)
	}
	for _, e := range extracted.Tasks {
		add(types.EntityTask, e.Content)
	}
	for _, ex := range extracted.Decisions {
		d := types.Entity{
			ID: uuid.NewString(), Type: types.EntityDecision, Content: ex.Content,
			FilePath: path, Project: project,
			ValidFrom: ex.ValidFrom, ValidTo: ex.ValidTo, CreatedAt: time.Now(),
		}
		if ex.SupersededBy != "" {
			d.SupersededBy = &ex.SupersededBy
		}
		entities = append(entities, d)
	}
	for _, e := range extracted.Code {
		content := e.Preview
		if e.Language != "" {
			content = e.Language + ": " + e.Preview
		}
		add(types.EntityCode, content)
	}
	return entities
}

// IngestBatch ingests files sequentially, collecting (not stopping on)
// per-file errors, matching the Worker's "one bad file must not abort
// the whole batch" expectation.
func (ing *Ingestor) IngestBatch(ctx context.Context, paths []string, project string) []error {
	var errs []error
	for _, p := range paths {
		if err := ing.IngestFile(ctx, p, project); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Scan walks root recursively, skipping noise directories and
// blacklisted filename patterns, returning every allowlisted file path
// (spec.md §4.10's "Directory scan").
func Scan(root string, blacklist []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if noiseDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if isBlacklisted(d.Name(), blacklist) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if allowedExt[ext] {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// IsAllowedFile reports whether path passes the same noise-directory,
// blacklist, and extension-allowlist checks Scan applies, without
// performing a directory walk. The Watcher uses this to filter
// individual fsnotify events before adding them to its pending batch.
func IsAllowedFile(path string, blacklist []string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if noiseDirs[seg] {
			return false
		}
	}
	if isBlacklisted(filepath.Base(path), blacklist) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	return allowedExt[ext]
}

func isBlacklisted(name string, patterns []string) bool {
	for _, p := range patterns {
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}
