package vector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// State is the observable state of the managed index.
type State int

const (
	// StateEmpty means no index exists: nothing was inserted yet, or the last document was deleted.
	StateEmpty State = iota
	// StateReady means a populated index is live.
	StateReady
)

// String returns the lowercase state name.
func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "empty"
}

// generation is one published version of the index. The pointer to the live
// generation is swapped atomically; a replaced generation is never mutated again.
type generation struct {
	index  Index
	number uint64
}

// Manager is the single owner of all vector records. Mutations are serialized
// by writeMu; readers load the live generation without taking it.
//
// Deleting is a full rebuild: the index cannot remove in place, so
// DeleteByDocument copies every remaining record into a fresh index, which
// costs O(total records). Use DeleteByDocuments to remove many documents with
// one rebuild.
type Manager struct {
	metric     Metric
	dimensions int
	build      Builder
	logger     *zap.Logger

	writeMu sync.Mutex
	live    atomic.Pointer[generation]
	builds  atomic.Uint64

	initMu   sync.Mutex
	initDone chan struct{} // non-nil while the first build is in flight
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a logger for build and rebuild events.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithBuilder replaces the index builder (default BuildMemoryIndex).
func WithBuilder(b Builder) ManagerOption {
	return func(m *Manager) { m.build = b }
}

// WithDimensions fixes the vector dimension. When unset it is taken from the first inserted batch.
func WithDimensions(n int) ManagerOption {
	return func(m *Manager) { m.dimensions = n }
}

// NewManager creates a manager in the Empty state.
func NewManager(metric Metric, opts ...ManagerOption) *Manager {
	if metric == "" {
		metric = MetricCosine
	}
	m := &Manager{
		metric: metric,
		build:  BuildMemoryIndex,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Insert adds records to the index. If no index exists it is built directly
// from records; otherwise records are appended to the live index. The batch
// becomes visible to Search atomically. On error the previous state is kept.
func (m *Manager) Insert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: insert batch is empty", models.ErrInvalidArgument)
	}
	dim := len(records[0].Vector)
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return err
		}
		if len(records[i].Vector) != dim {
			return fmt.Errorf("%w: batch mixes vector dimensions %d and %d", models.ErrInvalidArgument, dim, len(records[i].Vector))
		}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	cur := m.live.Load()
	if cur == nil {
		return m.initialize(ctx, dim, records)
	}
	if dim != cur.index.Dimensions() {
		return fmt.Errorf("%w: vector dimension %d, index has %d", models.ErrInvalidArgument, dim, cur.index.Dimensions())
	}
	if err := cur.index.Add(ctx, records); err != nil {
		return fmt.Errorf("%w: append %d records: %w", models.ErrIndexBuildFailed, len(records), err)
	}
	m.logger.Debug("vector index appended",
		zap.Int("records", len(records)),
		zap.Int("size", cur.index.Size()),
		zap.Uint64("generation", cur.number),
	)
	return nil
}

// initialize builds the first index. Must be called with writeMu held.
// Searches arriving meanwhile wait on initDone instead of reporting Empty.
func (m *Manager) initialize(ctx context.Context, dim int, records []models.VectorRecord) error {
	if m.dimensions > 0 && dim != m.dimensions {
		return fmt.Errorf("%w: vector dimension %d, expected %d", models.ErrInvalidArgument, dim, m.dimensions)
	}
	done := make(chan struct{})
	m.initMu.Lock()
	m.initDone = done
	m.initMu.Unlock()
	defer func() {
		m.initMu.Lock()
		m.initDone = nil
		m.initMu.Unlock()
		close(done)
	}()

	start := time.Now()
	idx, err := m.build(ctx, dim, m.metric, records)
	if err != nil {
		return fmt.Errorf("%w: initial build of %d records: %w", models.ErrIndexBuildFailed, len(records), err)
	}
	gen := m.publish(idx)
	m.logger.Debug("vector index initialized",
		zap.Int("records", len(records)),
		zap.Int("dimensions", dim),
		zap.String("metric", string(m.metric)),
		zap.Uint64("generation", gen.number),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (m *Manager) publish(idx Index) *generation {
	gen := &generation{index: idx, number: m.builds.Add(1)}
	m.live.Store(gen)
	return gen
}

// current returns the live generation, waiting for an in-flight first build.
// A nil generation means Empty.
func (m *Manager) current(ctx context.Context) (*generation, error) {
	if gen := m.live.Load(); gen != nil {
		return gen, nil
	}
	m.initMu.Lock()
	wait := m.initDone
	m.initMu.Unlock()
	if wait == nil {
		return m.live.Load(), nil
	}
	select {
	case <-wait:
		return m.live.Load(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Search returns up to k records nearest to query, ordered by descending
// similarity. An Empty index yields an empty result, not an error. Returned
// records carry their own copy of the vector.
func (m *Manager) Search(ctx context.Context, query []float32, k int) (*models.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidArgument, k)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", models.ErrInvalidArgument)
	}
	if i, ok := models.FiniteVector(query); !ok {
		return nil, fmt.Errorf("%w: query vector has non-finite component at %d", models.ErrInvalidArgument, i)
	}
	gen, err := m.current(ctx)
	if err != nil {
		return nil, err
	}
	result := &models.RetrievalResult{}
	if gen == nil {
		return result, nil
	}
	if len(query) != gen.index.Dimensions() {
		return nil, fmt.Errorf("%w: query dimension %d, index has %d", models.ErrInvalidArgument, len(query), gen.index.Dimensions())
	}
	hits, err := gen.index.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	result.Records = make([]models.VectorRecord, len(hits))
	result.Scores = make([]float64, len(hits))
	for i, h := range hits {
		rec := h.Record
		rec.Vector = append([]float32(nil), h.Record.Vector...)
		result.Records[i] = rec
		result.Scores[i] = m.metric.Similarity(h.Distance)
	}
	return result, nil
}

// DeleteByDocument removes every record of documentID and returns how many
// were removed. Unknown ids return 0 without rebuilding.
func (m *Manager) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	removed, err := m.DeleteByDocuments(ctx, []string{documentID})
	if err != nil {
		return 0, err
	}
	return removed[documentID], nil
}

// DeleteByDocuments removes the records of all ids with a single rebuild and
// returns the removed count per id. The replacement index is built privately
// and published with one pointer swap, so concurrent searches observe either
// the old or the new index. If the rebuild fails the old index stays live.
func (m *Manager) DeleteByDocuments(ctx context.Context, documentIDs []string) (map[string]int, error) {
	targets := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		targets[id] = true
	}
	removed := make(map[string]int, len(targets))

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	cur := m.live.Load()
	if cur == nil || len(targets) == 0 {
		return removed, nil
	}

	start := time.Now()
	all := cur.index.All()
	remaining := make([]models.VectorRecord, 0, len(all))
	for _, r := range all {
		if targets[r.DocumentID] {
			removed[r.DocumentID]++
			continue
		}
		remaining = append(remaining, r)
	}
	if len(remaining) == len(all) {
		return removed, nil
	}
	if len(remaining) == 0 {
		m.live.Store(nil)
		m.logger.Debug("vector index reset to empty", zap.Int("removed", len(all)))
		return removed, nil
	}

	idx, err := m.build(ctx, cur.index.Dimensions(), m.metric, remaining)
	if err != nil {
		return nil, fmt.Errorf("%w: rebuild with %d records: %w", models.ErrIndexBuildFailed, len(remaining), err)
	}
	gen := m.publish(idx)
	m.logger.Debug("vector index rebuilt",
		zap.Int("removed", len(all)-len(remaining)),
		zap.Int("remaining", len(remaining)),
		zap.Uint64("generation", gen.number),
		zap.Duration("took", time.Since(start)),
	)
	return removed, nil
}

// Reset returns the manager to Empty.
func (m *Manager) Reset() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.live.Store(nil)
}

// State reports whether an index is live.
func (m *Manager) State() State {
	if m.live.Load() == nil {
		return StateEmpty
	}
	return StateReady
}

// Size returns the number of records in the live index.
func (m *Manager) Size() int {
	gen := m.live.Load()
	if gen == nil {
		return 0
	}
	return gen.index.Size()
}

// Generation returns how many indexes have been published (initial builds plus rebuilds).
func (m *Manager) Generation() uint64 {
	return m.builds.Load()
}

// Metric returns the distance metric every generation is built with.
func (m *Manager) Metric() Metric {
	return m.metric
}

// CountByDocument returns the number of live records carrying documentID.
func (m *Manager) CountByDocument(documentID string) int {
	return m.DocumentCounts()[documentID]
}

// DocumentCounts returns the number of live records per document id.
func (m *Manager) DocumentCounts() map[string]int {
	counts := make(map[string]int)
	gen := m.live.Load()
	if gen == nil {
		return counts
	}
	for _, r := range gen.index.All() {
		counts[r.DocumentID]++
	}
	return counts
}
