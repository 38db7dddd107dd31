package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// bleveFTS is the Bleve-backed alternative to the SQLite FTS5 virtual
// table, selected via config.Search.BM25Backend = "bleve". Grounded on
// the teacher's internal/store/bm25.go (BleveBM25Index): the same
// NewMemOnly / bleve.Open-or-New bootstrap and batch index/delete
// calls, mapped onto knowledge_fts's (path, content, stemmed, project,
// start_line, end_line) row shape instead of the teacher's
// single-field code document.
type bleveFTS struct {
	mu    sync.RWMutex
	index bleve.Index
}

type bleveFTSDoc struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Stemmed   string `json:"stemmed"`
	Project   string `json:"project"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func newBleveFTS(dir string) (*bleveFTS, error) {
	im := bleveFTSMapping()

	var idx bleve.Index
	var err error
	if dir == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(dir), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create bleve parent dir: %w", mkErr)
		}
		idx, err = bleve.Open(dir)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(dir, im)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve fts index: %w", err)
	}
	return &bleveFTS{index: idx}, nil
}

// bleveFTSMapping indexes path/project as unanalyzed keyword fields (so
// term queries match exactly) and stemmed as a standard-analyzed text
// field (so per-token AND/OR queries work the same way the SQLite FTS5
// MATCH query does).
func bleveFTSMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	doc.AddFieldMappingsAt("path", keyword)
	doc.AddFieldMappingsAt("project", keyword)

	stemmed := bleve.NewTextFieldMapping()
	stemmed.Analyzer = "standard"
	doc.AddFieldMappingsAt("stemmed", stemmed)

	content := bleve.NewTextFieldMapping()
	content.Index = false
	doc.AddFieldMappingsAt("content", content)

	lines := bleve.NewNumericFieldMapping()
	doc.AddFieldMappingsAt("start_line", lines)
	doc.AddFieldMappingsAt("end_line", lines)

	im.AddDocumentMapping("_default", doc)
	return im
}

func (b *bleveFTS) Insert(ctx context.Context, path, content, stemmed, project string, startLine, endLine int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%s#%d-%d", path, startLine, endLine)
	return b.index.Index(id, bleveFTSDoc{
		Path: path, Content: content, Stemmed: stemmed, Project: project,
		StartLine: startLine, EndLine: endLine,
	})
}

// DeleteFor removes every doc with path=path, matching the SQL
// backend's "DELETE FROM knowledge_fts WHERE path = ?" behavior. Bleve
// has no delete-by-query, so this searches for the matching IDs first
// and batch-deletes them.
func (b *bleveFTS) DeleteFor(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	term := bleve.NewTermQuery(path)
	term.SetField("path")
	req := bleve.NewSearchRequest(term)
	req.Size = 1_000_000
	req.Fields = nil

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("bleve fts delete lookup: %w", err)
	}
	if len(result.Hits) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, hit := range result.Hits {
		batch.Delete(hit.ID)
	}
	return b.index.Batch(batch)
}

// Wipe removes every document, matching the SQL backend's
// "DELETE FROM knowledge_fts" during a rebuild-from-archive pass.
func (b *bleveFTS) Wipe(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 1_000_000
	req.Fields = nil

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("bleve fts wipe lookup: %w", err)
	}
	if len(result.Hits) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, hit := range result.Hits {
		batch.Delete(hit.ID)
	}
	return b.index.Batch(batch)
}

// Search mirrors MetadataStore.SearchFTS's and/or/phrase contract over
// the stemmed field.
func (b *bleveFTS) Search(ctx context.Context, stemmedQuery, project string, limit int, mode ftsMode) ([]FTSHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if strings.TrimSpace(stemmedQuery) == "" {
		return nil, nil
	}
	tokens := strings.Fields(stemmedQuery)

	var q query.Query
	switch mode {
	case ModePhrase:
		pq := bleve.NewMatchPhraseQuery(stemmedQuery)
		pq.SetField("stemmed")
		q = pq
	case ModeOr:
		disj := bleve.NewDisjunctionQuery()
		for _, t := range tokens {
			mq := bleve.NewMatchQuery(t)
			mq.SetField("stemmed")
			disj.AddQuery(mq)
		}
		q = disj
	default: // and
		conj := bleve.NewConjunctionQuery()
		for _, t := range tokens {
			mq := bleve.NewMatchQuery(t)
			mq.SetField("stemmed")
			conj.AddQuery(mq)
		}
		q = conj
	}

	if project != "" {
		pq := bleve.NewTermQuery(project)
		pq.SetField("project")
		q = bleve.NewConjunctionQuery(q, pq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"path", "content", "start_line", "end_line"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve fts search: %w", err)
	}

	hits := make([]FTSHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, FTSHit{
			Path:      fieldString(hit.Fields["path"]),
			Content:   fieldString(hit.Fields["content"]),
			StartLine: fieldInt(hit.Fields["start_line"]),
			EndLine:   fieldInt(hit.Fields["end_line"]),
			Score:     hit.Score,
		})
	}
	return hits, nil
}

func (b *bleveFTS) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

func fieldString(v any) string {
	s, _ := v.(string)
	return s
}

func fieldInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
