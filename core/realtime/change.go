// Package realtime carries table change notifications from writers to
// subscribers, in-process or over Redis, and fans them out to websocket
// clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Tables with change streams.
const (
	TableAssignments = "assignments"
	TableEvents      = "events"
	TableMediaFiles  = "media_files"
)

// ChangeEvent is one row change on a table. New is absent for deletes and
// Old is absent for inserts.
type ChangeEvent struct {
	Table     string          `json:"table"`
	Event     EventType       `json:"event"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewChangeEvent marshals the row snapshots; nil rows are omitted.
func NewChangeEvent(table string, event EventType, newRow, oldRow interface{}) (ChangeEvent, error) {
	ev := ChangeEvent{Table: table, Event: event, Timestamp: time.Now().UnixMilli()}
	if newRow != nil {
		data, err := json.Marshal(newRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("marshal new row: %w", err)
		}
		ev.New = data
	}
	if oldRow != nil {
		data, err := json.Marshal(oldRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("marshal old row: %w", err)
		}
		ev.Old = data
	}
	return ev, nil
}

// Handler receives change events. It runs on the notifier's delivery
// goroutine and must not block for long.
type Handler func(ChangeEvent)

// Subscription is a cancellable registration. Close is idempotent; no
// handler call starts after Close returns.
type Subscription interface {
	Close() error
}

// Notifier publishes and delivers change events per table.
type Notifier interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	Subscribe(ctx context.Context, table string, h Handler) (Subscription, error)
	Close() error
}

// Publish builds and publishes an event in one call.
func Publish(ctx context.Context, n Notifier, table string, event EventType, newRow, oldRow interface{}) error {
	ev, err := NewChangeEvent(table, event, newRow, oldRow)
	if err != nil {
		return err
	}
	return n.Publish(ctx, ev)
}
