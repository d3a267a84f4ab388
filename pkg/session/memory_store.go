package session

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore implements Store and Transactor using in-memory storage.
// Transactions are serialized with each other and with direct writes; their
// writes are staged and applied only when the callback succeeds.
type MemoryStore struct {
	mu      sync.RWMutex
	txMu    sync.Mutex
	records map[uuid.UUID]*Record
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*Record)}
}

// Get retrieves a record by ID
func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rec.Clone(), nil
}

// Create stores a new record
func (m *MemoryStore) Create(ctx context.Context, rec *Record) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.create(rec)
}

func (m *MemoryStore) create(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; ok {
		return ErrDuplicateSession
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

// Update replaces an existing record
func (m *MemoryStore) Update(ctx context.Context, rec *Record) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; !ok {
		return ErrSessionNotFound
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

// Delete removes a record by ID
func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

// ExpiredIDs lists the records matching f
func (m *MemoryStore) ExpiredIDs(ctx context.Context, f ExpiryFilter) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []uuid.UUID
	for id, rec := range m.records {
		if f.Match(rec) != ExpiryNone {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DeleteIfExpired removes the record if it still matches f
func (m *MemoryStore) DeleteIfExpired(ctx context.Context, id uuid.UUID, f ExpiryFilter) (ExpiryReason, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return ExpiryNone, nil
	}
	reason := f.Match(rec)
	if reason != ExpiryNone {
		delete(m.records, id)
	}
	return reason, nil
}

// DeleteByUserID removes all sessions for a specific user
func (m *MemoryStore) DeleteByUserID(ctx context.Context, userID string) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.records {
		if rec.UserID != nil && *rec.UserID == userID {
			delete(m.records, id)
		}
	}
	return nil
}

// Stats returns memory store statistics
func (m *MemoryStore) Stats() (total, authenticated, anonymous int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total = len(m.records)
	for _, rec := range m.records {
		if rec.UserID != nil {
			authenticated++
		} else {
			anonymous++
		}
	}
	return
}

// RunInTx runs fn against a staged view of the store. Staged writes are
// applied only if fn returns nil and ctx is still live. fn must use tx, not
// the MemoryStore itself, which would block on txMu.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{
		parent:  m,
		staged:  make(map[uuid.UUID]*Record),
		deleted: make(map[uuid.UUID]bool),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range tx.deleted {
		delete(m.records, id)
	}
	for id, rec := range tx.staged {
		m.records[id] = rec
	}
	return nil
}

type memoryTx struct {
	parent  *MemoryStore
	staged  map[uuid.UUID]*Record
	deleted map[uuid.UUID]bool
}

func (t *memoryTx) lookup(id uuid.UUID) (*Record, bool) {
	if rec, ok := t.staged[id]; ok {
		return rec, true
	}
	if t.deleted[id] {
		return nil, false
	}
	t.parent.mu.RLock()
	defer t.parent.mu.RUnlock()
	rec, ok := t.parent.records[id]
	return rec, ok
}

func (t *memoryTx) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, ok := t.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rec.Clone(), nil
}

func (t *memoryTx) Create(ctx context.Context, rec *Record) error {
	if _, ok := t.lookup(rec.ID); ok {
		return ErrDuplicateSession
	}
	t.staged[rec.ID] = rec.Clone()
	return nil
}

func (t *memoryTx) Update(ctx context.Context, rec *Record) error {
	if _, ok := t.lookup(rec.ID); !ok {
		return ErrSessionNotFound
	}
	t.staged[rec.ID] = rec.Clone()
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, id uuid.UUID) error {
	delete(t.staged, id)
	t.deleted[id] = true
	return nil
}

func (t *memoryTx) DeleteByUserID(ctx context.Context, userID string) error {
	owned := func(rec *Record) bool { return rec.UserID != nil && *rec.UserID == userID }

	var ids []uuid.UUID
	t.parent.mu.RLock()
	for id, rec := range t.parent.records {
		if _, staged := t.staged[id]; !staged && owned(rec) {
			ids = append(ids, id)
		}
	}
	t.parent.mu.RUnlock()
	for id, rec := range t.staged {
		if owned(rec) {
			ids = append(ids, id)
		}
	}

	for _, id := range ids {
		_ = t.Delete(ctx, id)
	}
	return nil
}

func (t *memoryTx) ExpiredIDs(ctx context.Context, f ExpiryFilter) ([]uuid.UUID, error) {
	ids, err := t.parent.ExpiredIDs(ctx, f)
	if err != nil {
		return nil, err
	}
	ids = slices.DeleteFunc(ids, func(id uuid.UUID) bool {
		_, staged := t.staged[id]
		return staged || t.deleted[id]
	})
	for id, rec := range t.staged {
		if f.Match(rec) != ExpiryNone {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *memoryTx) DeleteIfExpired(ctx context.Context, id uuid.UUID, f ExpiryFilter) (ExpiryReason, error) {
	rec, ok := t.lookup(id)
	if !ok {
		return ExpiryNone, nil
	}
	reason := f.Match(rec)
	if reason != ExpiryNone {
		_ = t.Delete(ctx, id)
	}
	return reason, nil
}
