package voxpro

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"voxpro/core/realtime"
	"voxpro/logger"
	"voxpro/model"
)

// ConnectionStatus is the key model's view of the data service.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// ErrModelClosed is returned by Refresh after Close.
var ErrModelClosed = errors.New("key model closed")

// ConnectionError records a failed fetch or subscribe against the data
// service. The model keeps serving its last good snapshot.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s assignments: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// KeyModelOptions tunes a KeyModel.
type KeyModelOptions struct {
	// RefreshInterval enables a periodic re-fetch. Zero disables it.
	RefreshInterval time.Duration
	// FetchTimeout bounds each fetch. Zero means 10s.
	FetchTimeout time.Duration
	// OnFetchError is called for every failed fetch (metrics hook).
	OnFetchError func(error)
}

// KeyModel holds the latest assignment snapshot and keeps it fresh: every
// change notification triggers a full re-fetch.
type KeyModel struct {
	store AssignmentStore
	opts  KeyModelOptions

	mu        sync.RWMutex
	snapshot  []model.Assignment
	status    ConnectionStatus
	lastErr   error
	issued    uint64 // sequence of the last started fetch
	applied   uint64 // sequence of the last applied result
	closed    bool
	started   bool
	sub       realtime.Subscription
	listeners map[int]func()
	nextLis   int

	// subscribing is set while a Subscribe call is in flight.
	subscribing bool

	trigger chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewKeyModel(store AssignmentStore, opts KeyModelOptions) *KeyModel {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &KeyModel{
		store:     store,
		opts:      opts,
		status:    StatusConnecting,
		listeners: make(map[int]func()),
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start performs the initial fetch, subscribes to the assignments change
// stream and starts the refresh loop. Failures only show up in Status.
// A failed subscription is retried after the next successful Refresh.
func (m *KeyModel) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	_ = m.Refresh(ctx)
	m.ensureSubscribed(ctx)

	m.wg.Add(1)
	go m.loop()
}

// ensureSubscribed subscribes unless the model already holds a
// subscription, has not started or is closed.
func (m *KeyModel) ensureSubscribed(ctx context.Context) {
	m.mu.Lock()
	if !m.started || m.closed || m.sub != nil || m.subscribing {
		m.mu.Unlock()
		return
	}
	m.subscribing = true
	m.mu.Unlock()

	m.subscribe(ctx)

	m.mu.Lock()
	m.subscribing = false
	m.mu.Unlock()
}

func (m *KeyModel) subscribe(ctx context.Context) {
	sub, err := m.store.Subscribe(ctx, func(realtime.ChangeEvent) {
		select {
		case m.trigger <- struct{}{}:
		default:
		}
	})
	if err != nil {
		logger.Warn("subscribe to assignment changes failed", logger.ErrorField(err))
		m.fail(&ConnectionError{Op: "subscribe", Err: err}, 0)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = sub.Close()
		return
	}
	m.sub = sub
	m.mu.Unlock()
}

func (m *KeyModel) loop() {
	defer m.wg.Done()

	var tick <-chan time.Time
	if m.opts.RefreshInterval > 0 {
		ticker := time.NewTicker(m.opts.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-m.done:
			return
		case <-m.trigger:
			_ = m.Refresh(context.Background())
		case <-tick:
			_ = m.Refresh(context.Background())
		}
	}
}

// Refresh re-fetches the full assignment set. A result older than one
// already applied, or arriving after Close, is discarded.
func (m *KeyModel) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrModelClosed
	}
	m.issued++
	seq := m.issued
	m.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()

	rows, err := m.store.FetchAll(fetchCtx)
	if err != nil {
		cerr := &ConnectionError{Op: "fetch", Err: err}
		if m.opts.OnFetchError != nil {
			m.opts.OnFetchError(err)
		}
		m.fail(cerr, seq)
		return cerr
	}

	sorted := make([]model.Assignment, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].NewerThan(sorted[j]) })

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrModelClosed
	}
	if seq < m.applied {
		m.mu.Unlock()
		logger.Debug("discarding stale assignment fetch", logger.Int64("seq", int64(seq)))
		return nil
	}
	m.applied = seq
	m.snapshot = sorted
	m.status = StatusConnected
	m.lastErr = nil
	m.mu.Unlock()

	m.notify()
	m.ensureSubscribed(ctx)
	return nil
}

// fail marks the model disconnected. seq 0 means the failure is not tied to
// a fetch and always applies.
func (m *KeyModel) fail(err error, seq uint64) {
	m.mu.Lock()
	if m.closed || (seq != 0 && seq < m.applied) {
		m.mu.Unlock()
		return
	}
	if seq != 0 {
		m.applied = seq
	}
	m.status = StatusDisconnected
	m.lastErr = err
	m.mu.Unlock()

	logger.Warn("assignment service unavailable", logger.ErrorField(err))
	m.notify()
}

func (m *KeyModel) notify() {
	m.mu.RLock()
	fns := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// OnChange registers fn for snapshot and status changes and returns a func
// that removes it.
func (m *KeyModel) OnChange(fn func()) func() {
	m.mu.Lock()
	id := m.nextLis
	m.nextLis++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Lookup answers against the current snapshot.
func (m *KeyModel) Lookup(keySlot string) (model.Assignment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Lookup(m.snapshot, keySlot)
}

// Snapshot returns a copy of the rows, newest first.
func (m *KeyModel) Snapshot() []model.Assignment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Assignment, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

func (m *KeyModel) Status() ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LastError is the error behind the current disconnected status, if any.
func (m *KeyModel) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Close tears down the subscription and the refresh loop. It must not be
// called from an OnChange listener.
func (m *KeyModel) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sub := m.sub
	m.sub = nil
	started := m.started
	m.listeners = make(map[int]func())
	m.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	close(m.done)
	if started {
		m.wg.Wait()
	}
	return err
}
