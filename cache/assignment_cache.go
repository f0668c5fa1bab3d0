package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voxpro/model"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotKey = "voxpro:assignments:snapshot"
	lastGoodKey = "voxpro:assignments:last_good"
	versionKey  = "voxpro:assignments:version"
)

// ErrStaleSnapshot is returned by Set when the table changed after the
// caller read Version.
var ErrStaleSnapshot = errors.New("assignment snapshot is stale")

// AssignmentCache keeps the assignment list in Redis. The fresh copy
// expires and is dropped on every change; the last good copy is only ever
// overwritten and backs reads while the database is unreachable.
//
// Every Invalidate bumps a version counter. Readers take Version before
// querying the database and pass it to Set, so a list read before a write
// is never stored after that write's invalidation.
type AssignmentCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAssignmentCache(client *redis.Client, ttl time.Duration) *AssignmentCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AssignmentCache{client: client, ttl: ttl}
}

// Get returns the fresh snapshot. ok is false on a miss.
func (c *AssignmentCache) Get(ctx context.Context) ([]model.Assignment, bool, error) {
	return c.read(ctx, snapshotKey)
}

// LastGood returns the most recent snapshot ever stored.
func (c *AssignmentCache) LastGood(ctx context.Context) ([]model.Assignment, bool, error) {
	return c.read(ctx, lastGoodKey)
}

func (c *AssignmentCache) read(ctx context.Context, key string) ([]model.Assignment, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var rows []model.Assignment
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return rows, true, nil
}

// Version returns the current change counter; 0 before the first change.
func (c *AssignmentCache) Version(ctx context.Context) (int64, error) {
	return c.version(ctx, c.client)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *AssignmentCache) version(ctx context.Context, cmd getter) (int64, error) {
	v, err := cmd.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", versionKey, err)
	}
	return v, nil
}

// Set stores rows as both the fresh and the last good snapshot, provided
// the version is still the one the rows were read at. Otherwise it returns
// ErrStaleSnapshot and stores nothing.
func (c *AssignmentCache) Set(ctx context.Context, version int64, rows []model.Assignment) error {
	if rows == nil {
		rows = []model.Assignment{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode assignments: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.version(ctx, tx)
		if err != nil {
			return err
		}
		if current != version {
			return ErrStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, snapshotKey, data, c.ttl)
			pipe.Set(ctx, lastGoodKey, data, 0)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleSnapshot), errors.Is(err, redis.TxFailedErr):
		return ErrStaleSnapshot
	default:
		return fmt.Errorf("failed to store assignments: %w", err)
	}
}

// Invalidate bumps the version and drops the fresh snapshot.
func (c *AssignmentCache) Invalidate(ctx context.Context) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, versionKey)
	pipe.Del(ctx, snapshotKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate assignments: %w", err)
	}
	return nil
}
