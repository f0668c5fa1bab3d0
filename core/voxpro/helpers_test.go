package voxpro

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voxpro/core/realtime"
	"voxpro/model"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func assignment(id, slot string, ageMinutes int, url string) model.Assignment {
	return model.Assignment{
		ID:        id,
		KeySlot:   slot,
		Title:     "Title " + id,
		MediaURL:  url,
		CreatedAt: base.Add(-time.Duration(ageMinutes) * time.Minute),
	}
}

// fakeStore serves rows from memory and delivers changes through a
// MemoryNotifier. With a non-nil calls channel every FetchAll hands out its
// own reply channel and blocks until the test answers it.
type fakeStore struct {
	mu       sync.Mutex
	rows     []model.Assignment
	err      error
	subErr   error
	fetches  int
	calls    chan chan []model.Assignment
	notifier *realtime.MemoryNotifier
}

func newFakeStore(rows ...model.Assignment) *fakeStore {
	return &fakeStore{rows: rows, notifier: realtime.NewMemoryNotifier()}
}

func (s *fakeStore) FetchAll(ctx context.Context) ([]model.Assignment, error) {
	s.mu.Lock()
	s.fetches++
	calls := s.calls
	rows := append([]model.Assignment(nil), s.rows...)
	err := s.err
	s.mu.Unlock()

	if calls != nil {
		reply := make(chan []model.Assignment, 1)
		calls <- reply
		select {
		case r := <-reply:
			return r, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rows, err
}

func (s *fakeStore) Insert(ctx context.Context, a *model.Assignment) error {
	s.mu.Lock()
	s.rows = append(s.rows, *a)
	s.mu.Unlock()
	return realtime.Publish(ctx, s.notifier, realtime.TableAssignments, realtime.EventInsert, a, nil)
}

func (s *fakeStore) Subscribe(ctx context.Context, h realtime.Handler) (realtime.Subscription, error) {
	s.mu.Lock()
	err := s.subErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.notifier.Subscribe(ctx, realtime.TableAssignments, h)
}

func (s *fakeStore) setSubErr(err error) {
	s.mu.Lock()
	s.subErr = err
	s.mu.Unlock()
}

func (s *fakeStore) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

var errOffline = errors.New("service offline")

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
