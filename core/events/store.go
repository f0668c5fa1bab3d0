// Package events owns the "current event" shown on the site. Status only
// changes through SetCurrent and ArchiveCurrent.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voxpro/core/realtime"
	"voxpro/logger"
	"voxpro/model"
	"voxpro/repository"
)

var (
	ErrNoCurrentEvent = errors.New("no current event")
	ErrEventNotFound  = errors.New("event not found")
	ErrEventArchived  = errors.New("event is archived")
	ErrInvalidEvent   = errors.New("invalid event")
)

type Store struct {
	repo     repository.EventRepository
	notifier realtime.Notifier
	now      func() time.Time
}

func NewStore(repo repository.EventRepository, notifier realtime.Notifier) *Store {
	return &Store{repo: repo, notifier: notifier, now: time.Now}
}

// Create adds an upcoming event.
func (s *Store) Create(ctx context.Context, e *model.Event) error {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	e.Status = model.EventStatusUpcoming
	e.ArchivedAt = nil

	if err := s.repo.Create(ctx, e); err != nil {
		return err
	}
	s.publish(ctx, realtime.EventInsert, e, nil)
	return nil
}

// SetCurrent makes id the current event and demotes any other current
// event to upcoming, in one transaction.
func (s *Store) SetCurrent(ctx context.Context, id string) (*model.Event, error) {
	var (
		target  *model.Event
		before  model.Event
		demoted []model.Event
	)

	err := s.repo.Transaction(ctx, func(repo repository.EventRepository) error {
		e, err := repo.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return err
		}
		if e.Status == model.EventStatusArchived {
			return ErrEventArchived
		}

		current, err := repo.FindByStatus(ctx, model.EventStatusCurrent)
		if err != nil {
			return err
		}
		for _, c := range current {
			if c.ID == e.ID {
				continue
			}
			c.Status = model.EventStatusUpcoming
			if err := repo.Save(ctx, &c); err != nil {
				return fmt.Errorf("failed to demote event %s: %w", c.ID, err)
			}
			demoted = append(demoted, c)
		}

		before = *e
		e.Status = model.EventStatusCurrent
		if err := repo.Save(ctx, e); err != nil {
			return fmt.Errorf("failed to promote event %s: %w", e.ID, err)
		}
		target = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range demoted {
		s.publish(ctx, realtime.EventUpdate, &demoted[i], nil)
	}
	s.publish(ctx, realtime.EventUpdate, target, &before)
	logger.Info("current event changed", logger.String("id", target.ID), logger.Int("demoted", len(demoted)))
	return target, nil
}

// ArchiveCurrent archives the current event.
func (s *Store) ArchiveCurrent(ctx context.Context) (*model.Event, error) {
	var target, before model.Event

	err := s.repo.Transaction(ctx, func(repo repository.EventRepository) error {
		current, err := repo.FindByStatus(ctx, model.EventStatusCurrent)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return ErrNoCurrentEvent
		}

		before = current[0]
		target = current[0]
		at := s.now().UTC()
		target.Status = model.EventStatusArchived
		target.ArchivedAt = &at
		return repo.Save(ctx, &target)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.EventUpdate, &target, &before)
	logger.Info("current event archived", logger.String("id", target.ID))
	return &target, nil
}

// Current returns the current event or ErrNoCurrentEvent.
func (s *Store) Current(ctx context.Context) (*model.Event, error) {
	current, err := s.repo.FindByStatus(ctx, model.EventStatusCurrent)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, ErrNoCurrentEvent
	}
	return &current[0], nil
}

func (s *Store) List(ctx context.Context) ([]model.Event, error) {
	return s.repo.List(ctx)
}

func (s *Store) publish(ctx context.Context, ev realtime.EventType, newRow, oldRow *model.Event) {
	if s.notifier == nil {
		return
	}
	var old interface{}
	if oldRow != nil {
		old = oldRow
	}
	if err := realtime.Publish(ctx, s.notifier, realtime.TableEvents, ev, newRow, old); err != nil {
		logger.Warn("publish event change failed", logger.ErrorField(err))
	}
}
