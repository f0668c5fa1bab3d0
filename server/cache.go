package server

import (
	"context"

	"voxpro/core/realtime"
	"voxpro/logger"
	"voxpro/model"
)

// AssignmentCache is the snapshot cache behind GET /api/assignments.
// cache.AssignmentCache is the Redis implementation.
type AssignmentCache interface {
	Get(ctx context.Context) ([]model.Assignment, bool, error)
	LastGood(ctx context.Context) ([]model.Assignment, bool, error)
	Version(ctx context.Context) (int64, error)
	Set(ctx context.Context, version int64, rows []model.Assignment) error
	Invalidate(ctx context.Context) error
}

// invalidatingNotifier drops the cached assignment list before an
// assignments change is published, so every subscriber that re-fetches on
// the event reads past the cache.
type invalidatingNotifier struct {
	realtime.Notifier
	cache AssignmentCache
}

func (n *invalidatingNotifier) Publish(ctx context.Context, ev realtime.ChangeEvent) error {
	if ev.Table == realtime.TableAssignments {
		if err := n.cache.Invalidate(ctx); err != nil {
			logger.Warn("invalidate assignment cache failed",
				logger.String("event", string(ev.Event)),
				logger.ErrorField(err))
		}
	}
	return n.Notifier.Publish(ctx, ev)
}
