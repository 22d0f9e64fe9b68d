package records

import (
	"context"
	"sync"

	"github.com/kvstash/kvstash/internal/kvstore"
)

// Memory is a map-backed RecordStore.
type Memory struct {
	maxItemSize int64

	mu    sync.RWMutex
	items map[string]kvstore.Record
}

// NewMemory creates an empty store; maxItemSize <= 0 disables the size limit.
func NewMemory(maxItemSize int64) *Memory {
	return &Memory{
		maxItemSize: maxItemSize,
		items:       make(map[string]kvstore.Record),
	}
}

func (m *Memory) Put(ctx context.Context, path string, record kvstore.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if exceedsLimit(record, m.maxItemSize) {
		return kvstore.ErrItemTooLarge
	}
	record.Body = append([]byte(nil), record.Body...)

	m.mu.Lock()
	m.items[path] = record
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, path string) (*kvstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	record, ok := m.items[path]
	m.mu.RUnlock()
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	record.Body = append([]byte(nil), record.Body...)
	return &record, nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.items, path)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func exceedsLimit(record kvstore.Record, limit int64) bool {
	return limit > 0 && record.Size() > limit
}
