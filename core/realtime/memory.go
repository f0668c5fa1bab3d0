package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrNotifierClosed is returned after Close.
var ErrNotifierClosed = errors.New("notifier closed")

// MemoryNotifier delivers events synchronously inside one process.
type MemoryNotifier struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[string]map[int64]*memorySubscription
	closed bool
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[int64]*memorySubscription)}
}

type memorySubscription struct {
	n       *MemoryNotifier
	table   string
	id      int64
	handler Handler

	// mu serialises delivery with Close so no handler runs after Close returns.
	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) deliver(ev ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handler(ev)
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.n.mu.Lock()
	if subs, ok := s.n.subs[s.table]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.n.subs, s.table)
		}
	}
	s.n.mu.Unlock()
	return nil
}

func (n *MemoryNotifier) Subscribe(ctx context.Context, table string, h Handler) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrNotifierClosed
	}

	n.nextID++
	sub := &memorySubscription{n: n, table: table, id: n.nextID, handler: h}
	if n.subs[table] == nil {
		n.subs[table] = make(map[int64]*memorySubscription)
	}
	n.subs[table][sub.id] = sub
	return sub, nil
}

func (n *MemoryNotifier) Publish(ctx context.Context, ev ChangeEvent) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return ErrNotifierClosed
	}
	// 复制订阅者列表，避免持锁回调
	targets := make([]*memorySubscription, 0, len(n.subs[ev.Table]))
	for _, sub := range n.subs[ev.Table] {
		targets = append(targets, sub)
	}
	n.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(ev)
	}
	return nil
}

// SubscriberCount 获取订阅者数量
func (n *MemoryNotifier) SubscriberCount(table string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[table])
}

func (n *MemoryNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.subs = make(map[string]map[int64]*memorySubscription)
	return nil
}
