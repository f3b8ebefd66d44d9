// Package store provides the notification persistence adapters: a
// Postgres implementation for production and an in-memory reference
// implementation for tests and development.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avisolabs/aviso/internal/notification"
)

// Memory is an in-memory notification store. It keeps a secondary index
// from target user id to notification ids so per-user lookups avoid
// scanning the full set.
type Memory struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*notification.Notification
	byUser map[string]map[uuid.UUID]struct{}
	order  []uuid.UUID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[uuid.UUID]*notification.Notification),
		byUser: make(map[string]map[uuid.UUID]struct{}),
	}
}

func (m *Memory) Create(ctx context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	n.Version = 1

	stored := n.Clone()
	m.byID[stored.ID] = stored
	m.order = append(m.order, stored.ID)
	m.indexLocked(stored)
	return nil
}

func (m *Memory) FindByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.byID[id]
	if !ok || n.DeletedAt != nil {
		return nil, notification.ErrNotFound
	}
	return n.Clone(), nil
}

func (m *Memory) FindAllNotDeleted(ctx context.Context) ([]*notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*notification.Notification, 0, len(m.order))
	for _, id := range m.order {
		if n := m.byID[id]; n.DeletedAt == nil {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

func (m *Memory) FindByTargetUser(ctx context.Context, userID string) ([]*notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byUser[userID]
	out := make([]*notification.Notification, 0, len(ids))
	// Walk the insertion order so results are stable.
	for _, id := range m.order {
		if _, ok := ids[id]; !ok {
			continue
		}
		if n := m.byID[id]; n.DeletedAt == nil {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Save(ctx context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[n.ID]
	if !ok || stored.DeletedAt != nil {
		return notification.ErrNotFound
	}
	if stored.Version != n.Version {
		return notification.ErrVersionConflict
	}

	m.unindexLocked(stored)

	n.Version++
	n.UpdatedAt = time.Now().UTC()
	n.CreatedAt = stored.CreatedAt

	updated := n.Clone()
	m.byID[updated.ID] = updated
	m.indexLocked(updated)
	return nil
}

func (m *Memory) SoftDelete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[id]
	if !ok || stored.DeletedAt != nil {
		return notification.ErrNotFound
	}

	now := time.Now().UTC()
	stored.DeletedAt = &now
	stored.UpdatedAt = now
	stored.Version++
	return nil
}

func (m *Memory) indexLocked(n *notification.Notification) {
	for _, userID := range n.TargetUserIDs {
		set, ok := m.byUser[userID]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			m.byUser[userID] = set
		}
		set[n.ID] = struct{}{}
	}
}

func (m *Memory) unindexLocked(n *notification.Notification) {
	for _, userID := range n.TargetUserIDs {
		delete(m.byUser[userID], n.ID)
	}
}
