package sink

import (
	"context"
	"sync"

	"outage-ingester/internal/model"
)

// Memory keeps the most recent notifications for the HTTP surface.
type Memory struct {
	mu    sync.RWMutex
	limit int
	items []model.Notification
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 100
	}
	return &Memory{limit: limit}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Push(_ context.Context, batch []model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, batch...)
	if over := len(m.items) - m.limit; over > 0 {
		m.items = append([]model.Notification(nil), m.items[over:]...)
	}
	return nil
}

// Recent returns stored notifications, newest first.
func (m *Memory) Recent() []model.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Notification, len(m.items))
	for i, n := range m.items {
		out[len(m.items)-1-i] = n
	}
	return out
}
