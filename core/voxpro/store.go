package voxpro

import (
	"context"

	"voxpro/core/realtime"
	"voxpro/logger"
	"voxpro/model"
	"voxpro/repository"
)

// AssignmentStore is the widget's view of the remote data service: the
// assignments table plus its change stream.
type AssignmentStore interface {
	FetchAll(ctx context.Context) ([]model.Assignment, error)
	Insert(ctx context.Context, a *model.Assignment) error
	// Subscribe registers h for every assignments change. The handler must
	// not close its own subscription.
	Subscribe(ctx context.Context, h realtime.Handler) (realtime.Subscription, error)
}

// RepositoryStore serves the widget from this process's own database.
type RepositoryStore struct {
	repo     repository.AssignmentRepository
	notifier realtime.Notifier
}

func NewRepositoryStore(repo repository.AssignmentRepository, notifier realtime.Notifier) *RepositoryStore {
	return &RepositoryStore{repo: repo, notifier: notifier}
}

func (s *RepositoryStore) FetchAll(ctx context.Context) ([]model.Assignment, error) {
	return s.repo.List(ctx)
}

// Insert stores the row and announces it. A failed announcement is logged,
// not returned: the row exists and the next refresh will see it.
func (s *RepositoryStore) Insert(ctx context.Context, a *model.Assignment) error {
	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	if err := realtime.Publish(ctx, s.notifier, realtime.TableAssignments, realtime.EventInsert, a, nil); err != nil {
		logger.Warn("publish assignment insert failed",
			logger.String("id", a.ID),
			logger.ErrorField(err))
	}
	return nil
}

func (s *RepositoryStore) Subscribe(ctx context.Context, h realtime.Handler) (realtime.Subscription, error) {
	return s.notifier.Subscribe(ctx, realtime.TableAssignments, h)
}
