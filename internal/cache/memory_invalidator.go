package cache

import (
	"context"
	"errors"
	"sync"
)

// InvalidationHub доставляет уведомления между invalidator'ами одного процесса.
// Заменяет NATS, когда узел один или в тестах.
type InvalidationHub struct {
	mu      sync.RWMutex
	members []*MemoryInvalidator
}

// NewInvalidationHub создаёт пустой хаб
func NewInvalidationHub() *InvalidationHub {
	return &InvalidationHub{}
}

// Join создаёт invalidator узла nodeID
func (h *InvalidationHub) Join(nodeID string) *MemoryInvalidator {
	m := &MemoryInvalidator{hub: h, nodeID: nodeID}
	h.mu.Lock()
	h.members = append(h.members, m)
	h.mu.Unlock()
	return m
}

func (h *InvalidationHub) leave(m *MemoryInvalidator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, other := range h.members {
		if other == m {
			h.members = append(h.members[:i], h.members[i+1:]...)
			return
		}
	}
}

func (h *InvalidationHub) deliver(from *MemoryInvalidator, key string) error {
	h.mu.RLock()
	members := make([]*MemoryInvalidator, len(h.members))
	copy(members, h.members)
	h.mu.RUnlock()

	var errs []error
	for _, m := range members {
		if m == from || m.nodeID == from.nodeID {
			continue
		}
		if err := m.handle(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryInvalidator реализует CacheInvalidator поверх InvalidationHub.
// Доставка синхронная.
type MemoryInvalidator struct {
	hub    *InvalidationHub
	nodeID string

	mu      sync.Mutex
	handler InvalidationHandler
}

func (m *MemoryInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.hub.deliver(m, key)
}

func (m *MemoryInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler != nil {
		return errors.New("подписка на инвалидацию уже существует")
	}
	m.handler = handler
	return nil
}

func (m *MemoryInvalidator) handle(key string) error {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(key)
}

func (m *MemoryInvalidator) Close() error {
	m.hub.leave(m)
	m.mu.Lock()
	m.handler = nil
	m.mu.Unlock()
	return nil
}
