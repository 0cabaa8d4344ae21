package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/prodsense/product-sensing-bot/internal/storage"
	"github.com/prodsense/product-sensing-bot/internal/store"
	"github.com/sirupsen/logrus"
)

const snapshotName = "index/comment-embeddings.json"

// noDataAnswer is returned by Ask when nothing relevant is indexed.
const noDataAnswer = "No relevant comments found."

// Entry ties an embedding vector to a stored comment
type Entry struct {
	CommentID uint      `json:"comment_id"`
	Timestamp time.Time `json:"timestamp"`
	Vector    []float32 `json:"vector"`
}

// Index holds comment embeddings in memory and answers similarity queries
// over them. Sync, Search and Ask are safe to call concurrently.
type Index struct {
	store     store.CommentStore
	embedder  Embedder
	generator Generator
	archive   storage.StorageInterface
	batchSize int
	sourceCap int
	pool      *ants.Pool

	mu      sync.RWMutex
	entries map[uint]Entry
}

// NewIndex creates an empty index. The archive is optional; with one set,
// the index persists snapshots so restarts do not require a full re-embed.
func NewIndex(st store.CommentStore, embedder Embedder, generator Generator, archive storage.StorageInterface, batchSize, sourceCap int) (*Index, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	if sourceCap <= 0 {
		sourceCap = 10
	}

	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Index{
		store:     st,
		embedder:  embedder,
		generator: generator,
		archive:   archive,
		batchSize: batchSize,
		sourceCap: sourceCap,
		pool:      pool,
		entries:   make(map[uint]Entry),
	}, nil
}

// Sync embeds stored comments that are not in the index yet and returns
// how many entries were added. limit <= 0 syncs everything. Batches embed
// concurrently; when one fails, entries from the others are kept and the
// error is still returned.
func (x *Index) Sync(ctx context.Context, limit int) (int, error) {
	if x.embedder == nil {
		return 0, fmt.Errorf("no embedder configured: %w", ErrRetrievalUnavailable)
	}

	comments, err := x.store.RecentComments(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("read comments: %w", err)
	}

	x.mu.RLock()
	var pending []models.Comment
	for _, c := range comments {
		if _, ok := x.entries[c.ID]; !ok && strings.TrimSpace(c.Text) != "" {
			pending = append(pending, c)
		}
	}
	x.mu.RUnlock()

	if len(pending) == 0 {
		return 0, nil
	}

	batches := chunkComments(pending, x.batchSize)
	results := make([][]Entry, len(batches))
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		task := func() {
			defer wg.Done()

			texts := make([]string, len(batch))
			for j, c := range batch {
				texts[j] = c.Text
			}

			vectors, err := x.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				errs[i] = err
				return
			}
			if len(vectors) != len(batch) {
				errs[i] = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
				return
			}

			entries := make([]Entry, len(batch))
			for j, c := range batch {
				entries[j] = Entry{CommentID: c.ID, Timestamp: c.Timestamp, Vector: vectors[j]}
			}
			results[i] = entries
		}
		if err := x.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	added := 0
	x.mu.Lock()
	for _, entries := range results {
		for _, e := range entries {
			x.entries[e.CommentID] = e
			added++
		}
	}
	x.mu.Unlock()

	var firstErr error
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}
	if firstErr != nil {
		return added, fmt.Errorf("embed comments (%v): %w", firstErr, ErrRetrievalUnavailable)
	}

	if added > 0 {
		x.saveSnapshot(ctx)
	}

	logrus.Infof("Semantic index sync added %d entries (%d total)", added, x.Count())
	return added, nil
}

// Search returns the limit most similar indexed comments to query. An
// empty index yields empty results without error.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = 10
	}

	x.mu.RLock()
	snapshot := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		snapshot = append(snapshot, e)
	}
	x.mu.RUnlock()

	if len(snapshot) == 0 {
		return []models.SearchResult{}, nil
	}
	if x.embedder == nil {
		return nil, fmt.Errorf("no embedder configured: %w", ErrRetrievalUnavailable)
	}

	queryVec, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query (%v): %w", err, ErrRetrievalUnavailable)
	}

	type scored struct {
		entry Entry
		score float64
	}
	hits := make([]scored, 0, len(snapshot))
	for _, e := range snapshot {
		hits = append(hits, scored{entry: e, score: cosineSimilarity(queryVec, e.Vector)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].entry.Timestamp.Equal(hits[j].entry.Timestamp) {
			return hits[i].entry.Timestamp.After(hits[j].entry.Timestamp)
		}
		return hits[i].entry.CommentID < hits[j].entry.CommentID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	ids := make([]uint, len(hits))
	for i, h := range hits {
		ids[i] = h.entry.CommentID
	}
	comments, err := x.store.CommentsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	byID := make(map[uint]models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		c, ok := byID[h.entry.CommentID]
		if !ok {
			// The entry outlived its comment; drop it from results.
			continue
		}
		results = append(results, models.SearchResult{
			Comment:         c,
			SimilarityScore: round4(h.score),
		})
	}
	return results, nil
}

// Ask answers a question grounded on the most similar indexed comments.
// Without any hits it returns a fixed no-data answer and never calls the
// generator.
func (x *Index) Ask(ctx context.Context, question string, limit int) (*models.Answer, error) {
	if limit <= 0 {
		limit = 5
	}

	results, err := x.Search(ctx, question, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &models.Answer{
			Answer:           noDataAnswer,
			RelevantComments: []models.SearchResult{},
			Sources:          0,
		}, nil
	}
	if x.generator == nil {
		return nil, fmt.Errorf("no generator configured: %w", ErrGenerationUnavailable)
	}

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("[%s %s] %s", r.Comment.BrandName, r.Comment.ProductName, strings.TrimSpace(r.Comment.Text)))
	}
	if len(lines) > x.sourceCap {
		lines = lines[:x.sourceCap]
	}

	answer, err := x.generator.GenerateAnswer(ctx, question, lines)
	if err != nil {
		return nil, fmt.Errorf("answer question (%v): %w", err, ErrGenerationUnavailable)
	}

	return &models.Answer{
		Answer:           answer,
		RelevantComments: results,
		Sources:          len(results),
	}, nil
}

// Count returns the number of indexed comments
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// LoadSnapshot restores the index from the archive, if a snapshot exists
func (x *Index) LoadSnapshot(ctx context.Context) error {
	if x.archive == nil {
		return nil
	}

	data, err := x.archive.Retrieve(ctx, snapshotName)
	if err != nil {
		return err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode index snapshot: %w", err)
	}

	x.mu.Lock()
	for _, e := range entries {
		x.entries[e.CommentID] = e
	}
	x.mu.Unlock()

	logrus.Infof("Restored %d index entries from snapshot", len(entries))
	return nil
}

// saveSnapshot persists the index best-effort; a failed save only logs.
func (x *Index) saveSnapshot(ctx context.Context) {
	if x.archive == nil {
		return
	}

	x.mu.RLock()
	entries := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		entries = append(entries, e)
	}
	x.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].CommentID < entries[j].CommentID })

	data, err := json.Marshal(entries)
	if err != nil {
		logrus.Errorf("Failed to marshal index snapshot: %v", err)
		return
	}
	if err := x.archive.Store(ctx, snapshotName, data); err != nil {
		logrus.Warnf("Failed to save index snapshot: %v", err)
	}
}

// Close releases the worker pool
func (x *Index) Close() {
	x.pool.Release()
}

func chunkComments(comments []models.Comment, size int) [][]models.Comment {
	var chunks [][]models.Comment
	for size < len(comments) {
		chunks = append(chunks, comments[:size])
		comments = comments[size:]
	}
	return append(chunks, comments)
}

// cosineSimilarity accumulates in float64 so long vectors keep precision.
// Zero or mismatched vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
