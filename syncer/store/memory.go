// Package store provides in-memory implementations of the syncer
// persistence interfaces (for testing/dev).
package store

import (
	"context"
	"sync"

	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// MEMORY QUEUE STORE - In-memory queue + sync state (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	items []syncer.QueueItem // enqueue order preserved
	state *syncer.Status
}

func NewMemory() *Memory {
	return &Memory{}
}

// PutQueueItem inserts or replaces by item id. A replacement keeps the
// original slice position so stable ordering survives coalescing merges.
func (m *Memory) PutQueueItem(_ context.Context, item syncer.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, it := range m.items {
		if it.ID == item.ID {
			m.items[i] = item
			return nil
		}
	}
	m.items = append(m.items, item)
	return nil
}

func (m *Memory) DeleteQueueItems(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.items[:0]
	for _, it := range m.items {
		if !drop[it.ID] {
			kept = append(kept, it)
		}
	}
	m.items = kept
	return nil
}

func (m *Memory) GetQueueItem(_ context.Context, id string) (*syncer.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, it := range m.items {
		if it.ID == id {
			cp := it
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListQueueItems(_ context.Context) ([]syncer.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]syncer.QueueItem, len(m.items))
	copy(result, m.items)
	return result, nil
}

func (m *Memory) GetQueueItemByEntity(_ context.Context, kind syncer.EntityKind, entityID string) (*syncer.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, it := range m.items {
		if it.Kind == kind && it.EntityID == entityID {
			cp := it
			return &cp, nil
		}
	}
	return nil, nil
}

// =============================================================================
// SYNC STATE
// =============================================================================

func (m *Memory) SaveSyncState(_ context.Context, status syncer.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &status
	return nil
}

func (m *Memory) LoadSyncState(_ context.Context) (*syncer.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}
