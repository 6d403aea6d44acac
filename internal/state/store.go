// ABOUTME: Write-through cache of state records in front of a durable Backend
// ABOUTME: Cache entries change only after the corresponding durable write succeeds

package state

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// DefaultLockTimeout bounds how long an operation waits for an entry lock.
const DefaultLockTimeout = 250 * time.Millisecond

// Backend is the durable-storage contract consumed by Store.
//
// Implementations return an error wrapping ErrNotFound when no row exists
// and ErrSerialization when a stored value cannot be decoded. Any other
// error is treated as the storage being unavailable.
type Backend interface {
	// LoadState reads one row by id.
	LoadState(ctx context.Context, id int64) (Row, error)
	// SaveState inserts the row or, on id conflict, replaces every non-key column.
	SaveState(ctx context.Context, row Row) error
	// SaveParameters replaces only the nested parameters block.
	SaveParameters(ctx context.Context, id int64, params []byte) error
	// QueryStatesAbove returns every row whose stored correlation signal
	// exceeds minDegree.
	QueryStatesAbove(ctx context.Context, minDegree float64) ([]Row, error)
}

// Observer receives cache and persistence events. metrics.Recorder
// satisfies it.
type Observer interface {
	ObserveCacheLookup(hit bool)
	ObservePersistence(op string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveCacheLookup(bool)         {}
func (nopObserver) ObservePersistence(string, error) {}

// Options configures a Store.
type Options struct {
	LockTimeout time.Duration
	Logger      *slog.Logger
	Observer    Observer
}

// Store is the write-through cache. It is safe for concurrent use.
type Store struct {
	backend     Backend
	lockTimeout time.Duration
	logger      *slog.Logger
	observer    Observer

	mu      sync.RWMutex
	entries map[int64]*Handle
	writes  map[int64]*writeState
	revs    map[int64]uint64
}

// writeState tracks the writes in flight for one id. Writes that overlap
// cannot tell which of them durable storage kept, so none of them touches
// the cache and the last one to finish evicts the entry.
type writeState struct {
	pending  int
	conflict bool
}

// NewStore creates a cache over backend.
func NewStore(backend Backend, opts Options) *Store {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Store{
		backend:     backend,
		lockTimeout: opts.LockTimeout,
		logger:      opts.Logger.With("component", "state-store"),
		observer:    opts.Observer,
		entries:     make(map[int64]*Handle),
		writes:      make(map[int64]*writeState),
		revs:        make(map[int64]uint64),
	}
}

// Handle is the shared, lock-guarded cache entry for one record.
type Handle struct {
	id      int64
	timeout time.Duration
	sem     chan struct{}
	rec     Record
}

func newHandle(rec Record, timeout time.Duration) *Handle {
	return &Handle{
		id:      rec.ID,
		timeout: timeout,
		sem:     make(chan struct{}, 1),
		rec:     rec,
	}
}

// ID returns the record id this handle guards.
func (h *Handle) ID() int64 {
	return h.id
}

// acquire takes the entry lock, waiting at most h.timeout.
func (h *Handle) acquire(ctx context.Context) error {
	select {
	case h.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case h.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockContention
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) release() {
	<-h.sem
}

// Snapshot returns a deep copy of the cached record.
func (h *Handle) Snapshot(ctx context.Context) (Record, error) {
	if err := h.acquire(ctx); err != nil {
		return Record{}, lockError("snapshot", h.id, err)
	}
	rec := h.rec.Clone()
	h.release()
	return rec, nil
}

// Get returns the cached handle for id, reading durable storage on a miss.
func (s *Store) Get(ctx context.Context, id int64) (*Handle, error) {
	if h := s.lookup(id); h != nil {
		s.observer.ObserveCacheLookup(true)
		return h, nil
	}
	s.observer.ObserveCacheLookup(false)

	s.mu.RLock()
	rev := s.revs[id]
	s.mu.RUnlock()

	row, err := s.backend.LoadState(ctx, id)
	s.observer.ObservePersistence("load", err)
	if err != nil {
		return nil, classify("get", id, err)
	}
	rec, err := row.Decode()
	if err != nil {
		return nil, &Error{Op: "get", ID: id, Kind: ErrSerialization, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent Put or Get may have filled the entry while we were
	// reading; theirs wins.
	if h, ok := s.entries[id]; ok {
		return h, nil
	}
	h := newHandle(rec, s.lockTimeout)
	// A write that started during the read may already have reached
	// storage, so the row we read could be stale. Hand it out uncached.
	if _, busy := s.writes[id]; busy || s.revs[id] != rev {
		return h, nil
	}
	s.entries[id] = h
	return h, nil
}

// Snapshot is Get followed by Handle.Snapshot.
func (s *Store) Snapshot(ctx context.Context, id int64) (Record, error) {
	h, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	return h.Snapshot(ctx)
}

// Put persists rec and, only when that succeeds, makes it the cached value.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return &Error{Op: "put", ID: rec.ID, Kind: ErrInvalidRecord, Err: err}
	}
	rec = rec.Clone()

	row, err := EncodeRow(rec)
	if err != nil {
		return &Error{Op: "put", ID: rec.ID, Kind: ErrSerialization, Err: err}
	}
	s.beginWrite(rec.ID)
	defer s.finishWrite(rec.ID)

	err = s.backend.SaveState(ctx, row)
	s.observer.ObservePersistence("save", err)
	if err != nil {
		return classify("put", rec.ID, err)
	}

	if s.conflicted(rec.ID) {
		return nil
	}
	s.mu.Lock()
	h, ok := s.entries[rec.ID]
	if !ok {
		s.entries[rec.ID] = newHandle(rec, s.lockTimeout)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := h.acquire(ctx); err != nil {
		s.evict(h)
		s.logger.Warn("evicted cache entry after lock contention", "state_id", rec.ID, "error", err)
		return nil
	}
	h.rec = rec
	h.release()
	return nil
}

// UpdatePredictions replaces the failure predictions of a cached record and
// persists only the nested block. Records that are not cached are left
// alone: the call is a no-op and returns nil.
func (s *Store) UpdatePredictions(ctx context.Context, id int64, preds []FailurePrediction) error {
	if err := ValidatePredictions(preds); err != nil {
		return &Error{Op: "update_predictions", ID: id, Kind: ErrInvalidRecord, Err: err}
	}

	s.beginWrite(id)
	defer s.finishWrite(id)

	// Looked up after registering the write: an entry evicted by an earlier
	// overlap must not have its stale block written back.
	h := s.lookup(id)
	if h == nil {
		s.logger.Debug("prediction update skipped, record not cached", "state_id", id)
		return nil
	}

	if err := h.acquire(ctx); err != nil {
		return lockError("update_predictions", id, err)
	}
	params := h.rec.Parameters.Clone()
	h.release()

	params.FailurePredictions = slices.Clone(preds)
	data, err := EncodeParameters(params)
	if err != nil {
		return &Error{Op: "update_predictions", ID: id, Kind: ErrSerialization, Err: err}
	}
	err = s.backend.SaveParameters(ctx, id, data)
	s.observer.ObservePersistence("save_parameters", err)
	if err != nil {
		return classify("update_predictions", id, err)
	}

	// A full Put that overlapped may have replaced the row after our block
	// landed. Patching the cached copy would then describe neither value.
	if s.conflicted(id) {
		return nil
	}
	if err := h.acquire(ctx); err != nil {
		s.evict(h)
		s.logger.Warn("evicted cache entry after lock contention", "state_id", id, "error", err)
		return nil
	}
	h.rec.Parameters.FailurePredictions = slices.Clone(preds)
	h.release()
	return nil
}

// QueryByCorrelationThreshold reads every stored record whose correlation
// signal exceeds minDegree. It bypasses the cache.
func (s *Store) QueryByCorrelationThreshold(ctx context.Context, minDegree float64) ([]Record, error) {
	rows, err := s.backend.QueryStatesAbove(ctx, minDegree)
	s.observer.ObservePersistence("query", err)
	if err != nil {
		return nil, classify("query_by_correlation_threshold", 0, err)
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Decode()
		if err != nil {
			return nil, &Error{Op: "query_by_correlation_threshold", ID: row.ID, Kind: ErrSerialization, Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Cached reports whether id currently has a cache entry.
func (s *Store) Cached(id int64) bool {
	return s.lookup(id) != nil
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) lookup(id int64) *Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

// beginWrite registers a write for id before it reaches durable storage.
func (s *Store) beginWrite(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revs[id]++
	ws, ok := s.writes[id]
	if !ok {
		ws = &writeState{}
		s.writes[id] = ws
	}
	ws.pending++
	if ws.pending > 1 {
		ws.conflict = true
	}
}

// finishWrite ends a write started by beginWrite. The last of a group of
// overlapping writes evicts the entry so the next Get reloads the value
// storage actually kept.
func (s *Store) finishWrite(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.writes[id]
	ws.pending--
	if ws.pending > 0 {
		return
	}
	delete(s.writes, id)
	if ws.conflict {
		delete(s.entries, id)
		s.logger.Debug("evicted cache entry after overlapping writes", "state_id", id)
	}
}

func (s *Store) conflicted(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.writes[id]
	return ok && ws.conflict
}

// evict drops h from the map if it is still the current entry, so the next
// Get reloads from durable storage.
func (s *Store) evict(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[h.id]; ok && cur == h {
		delete(s.entries, h.id)
	}
}
