package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// VectorConfig controls the HNSW graph's shape (spec.md §4.5).
type VectorConfig struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
}

// ErrDimensionMismatch is returned when a caller's vector does not match
// the store's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// VectorResult is one hit from VectorStore.Search, carrying the
// document and metadata alongside the id/distance/score per spec.md
// §4.5's "query(text, k, where?) -> {ids, docs, metas, distances}".
type VectorResult struct {
	ID       string
	Doc      string
	Meta     VectorMeta
	Distance float32
	Score    float64
}

// VectorMeta is the per-vector metadata spec.md §4.5 requires at
// minimum: source, project, type (chunk|entity), start_line, end_line,
// content_hash, indexed_at.
type VectorMeta struct {
	Source      string
	Project     string
	Type        string // "chunk" | "entity"
	StartLine   int
	EndLine     int
	ContentHash string
	IndexedAt   time.Time
}

// VectorWhere is an upsert/query/delete-time metadata predicate, the
// Go-native shape of spec.md §4.5's "where=predicate" parameter.
type VectorWhere func(VectorMeta) bool

// WhereProject returns a VectorWhere matching an exact project, or
// everything when project is empty.
func WhereProject(project string) VectorWhere {
	if project == "" {
		return nil
	}
	return func(m VectorMeta) bool { return m.Project == project }
}

// VectorStore is the HNSW-backed similarity index (spec.md §4.5), ported
// from the teacher's internal/store/hnsw.go. IDs here are chunk IDs
// (path#start-end) or "entity:<id>", not the teacher's generic document
// IDs. Alongside the HNSW graph it keeps the (document, metadata) pair
// spec.md §4.5 requires per id, so query() can return hydrated hits
// without a second round-trip to the Metadata Store.
type VectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	docs    map[string]string
	metas   map[string]VectorMeta
	nextKey uint64

	closed bool
}

type vectorMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorConfig
	Docs    map[string]string
	Metas   map[string]VectorMeta
}

// NewVectorStore builds an empty HNSW index per spec.md §4.5's default
// parameters (M=16, efSearch=20, cosine metric).
func NewVectorStore(cfg VectorConfig) (*VectorStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorStore{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		docs:    make(map[string]string),
		metas:   make(map[string]VectorMeta),
		nextKey: 0,
	}, nil
}

// Add inserts or updates (delete-then-add, lazily) vectors under chunk
// IDs, alongside their document text and metadata (spec.md §4.5
// "upsert(ids, docs, metas)"). coder/hnsw has a known issue deleting the
// last remaining node, so updates orphan the old key rather than
// calling graph.Delete. docs/metas are optional (nil-safe) but must
// either be empty or match len(ids).
func (s *VectorStore) Add(ctx context.Context, ids []string, vectors [][]float32, docs []string, metas []VectorMeta) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(docs) != 0 && len(docs) != len(ids) {
		return fmt.Errorf("ids and docs length mismatch: %d vs %d", len(ids), len(docs))
	}
	if len(metas) != 0 && len(metas) != len(ids) {
		return fmt.Errorf("ids and metas length mismatch: %d vs %d", len(ids), len(metas))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		if len(docs) != 0 {
			s.docs[id] = docs[i]
		}
		if len(metas) != 0 {
			s.metas[id] = metas[i]
		} else {
			delete(s.metas, id)
		}
	}
	return nil
}

// Search returns the k nearest chunk IDs to query, hydrated with their
// stored document/metadata, optionally filtered by where (spec.md
// §4.5's "query(text, k, where?)"). coder/hnsw has no native
// pre-filtered search, so this oversamples the graph and filters
// client-side, widening the sample until k matches are found or the
// whole graph has been inspected.
func (s *VectorStore) Search(ctx context.Context, query []float32, k int, where VectorWhere) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	sample := k * 4
	if sample < 50 {
		sample = 50
	}
	for {
		if sample > s.graph.Len() {
			sample = s.graph.Len()
		}
		nodes := s.graph.Search(normalizedQuery, sample)
		results := make([]*VectorResult, 0, k)
		for _, node := range nodes {
			id, exists := s.keyMap[node.Key]
			if !exists {
				continue // orphaned (lazily-deleted) node
			}
			meta := s.metas[id]
			if where != nil && !where(meta) {
				continue
			}
			distance := s.graph.Distance(normalizedQuery, node.Value)
			results = append(results, &VectorResult{
				ID:       id,
				Doc:      s.docs[id],
				Meta:     meta,
				Distance: distance,
				Score:    float64(distanceToScore(distance, s.config.Metric)),
			})
			if len(results) >= k {
				return results, nil
			}
		}
		if sample >= s.graph.Len() {
			return results, nil
		}
		sample *= 2
	}
}

// Get returns the stored documents and metadata for ids, in the shape
// of spec.md §4.5's "get(ids) -> {docs, metas}". Missing ids are
// omitted from the result, not errored.
func (s *VectorStore) Get(ids []string) (docs map[string]string, metas map[string]VectorMeta) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs = make(map[string]string, len(ids))
	metas = make(map[string]VectorMeta, len(ids))
	for _, id := range ids {
		if _, exists := s.idMap[id]; !exists {
			continue
		}
		if d, ok := s.docs[id]; ok {
			docs[id] = d
		}
		if m, ok := s.metas[id]; ok {
			metas[id] = m
		}
	}
	return docs, metas
}

// Delete lazily removes chunk IDs: the graph node is orphaned, not
// excised, matching the teacher's workaround for coder/hnsw's
// last-node-deletion bug.
func (s *VectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.docs, id)
			delete(s.metas, id)
		}
	}
	return nil
}

// DeleteWhere lazily removes every id whose metadata matches predicate,
// the Go-native shape of spec.md §4.5's "delete(where=predicate)".
func (s *VectorStore) DeleteWhere(ctx context.Context, predicate VectorWhere) error {
	if predicate == nil {
		return nil
	}
	s.mu.Lock()
	var toDelete []string
	for id, meta := range s.metas {
		if predicate(meta) {
			toDelete = append(toDelete, id)
		}
	}
	s.mu.Unlock()
	return s.Delete(ctx, toDelete)
}

// DeletePrefix lazily removes every chunk ID with the given file-path
// prefix, used when a file is re-ingested and its old chunks must be
// dropped before the new ones are added (spec.md §4.10).
func (s *VectorStore) DeletePrefix(ctx context.Context, pathPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	prefix := pathPrefix + "#"
	for id, key := range s.idMap {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.docs, id)
			delete(s.metas, id)
		}
	}
	return nil
}

// Clear lazily removes every live chunk ID, used by the
// rebuild-from-archive operation to reset the vector store before
// replaying archive.jsonl.
func (s *VectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	return s.Delete(ctx, ids)
}

// AllIDs returns every live chunk ID, used for store cross-consistency
// checks and the rebuild-from-archive round trip.
func (s *VectorStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

func (s *VectorStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

func (s *VectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Stats reports orphan counts for the background compaction job.
type Stats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

func (s *VectorStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	validIDs := len(s.idMap)
	graphNodes := s.graph.Len()
	return Stats{ValidIDs: validIDs, GraphNodes: graphNodes, Orphans: graphNodes - validIDs}
}

// Save persists the graph (temp file + atomic rename) and its ID
// mappings (gob) to path and path+".meta".
func (s *VectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *VectorStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := vectorMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config, Docs: s.docs, Metas: s.metas}
	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(meta); err != nil {
		_ = file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and its ID mappings from path and path+".meta".
func (s *VectorStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (s *VectorStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("vector_store_metadata_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	var meta vectorMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode vector metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string)
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.docs = meta.Docs
	if s.docs == nil {
		s.docs = make(map[string]string)
	}
	s.metas = meta.Metas
	if s.metas == nil {
		s.metas = make(map[string]VectorMeta)
	}
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the store. The HNSW graph needs no explicit cleanup.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadVectorStoreDimensions reads the configured dimensionality from an
// existing store's metadata without loading the full graph, so the
// Engine can detect an embedding-model change before ingest begins.
func ReadVectorStoreDimensions(vectorPath string) (int, error) {
	metaPath := vectorPath + ".meta"
	file, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open vector metadata: %w", err)
	}
	defer file.Close()

	var meta vectorMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode vector metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts an HNSW distance into a similarity score:
// 1 - cosine_distance for the cosine metric (i.e. the cosine similarity
// itself), a reciprocal falloff for l2.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default: // cos
		return 1.0 - distance
	}
}
