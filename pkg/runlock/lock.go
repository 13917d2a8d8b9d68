// Package runlock guards a (plant, metric) ingestion stream against
// concurrent writers. The cursor read-then-write cycle is not atomic across
// processes, so each driver takes an advisory Redis lease before running.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	lockKeyPrefix = "solarwatch:ingest:lock"
	leaseTTL      = 30 * time.Second
	renewInterval = 10 * time.Second
)

var (
	// ErrLockHeld is returned when another process holds the stream lock
	ErrLockHeld = errors.New("ingestion lock is held by another process")
)

// Lock is an advisory single-writer lease for one ingestion stream
type Lock interface {
	// Acquire takes the lease or fails fast with ErrLockHeld
	Acquire(ctx context.Context) error
	// Release drops the lease if this instance still owns it
	Release(ctx context.Context)
}

// lock implements Lock over a Redis SetNX lease with periodic renewal
type lock struct {
	log        logrus.FieldLogger
	redis      *redis.Client
	instanceID string
	key        string

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a lock for the given (plant, metric) stream
func New(log logrus.FieldLogger, redisOpt *redis.Options, plantID int64, stream string) Lock {
	return &lock{
		log:        log.WithField("component", "runlock"),
		redis:      redis.NewClient(redisOpt),
		instanceID: uuid.New().String(),
		key:        fmt.Sprintf("%s:%d:%s", lockKeyPrefix, plantID, stream),
		done:       make(chan struct{}),
	}
}

func (l *lock) Acquire(ctx context.Context) error {
	acquired, err := l.redis.SetNX(ctx, l.key, l.instanceID, leaseTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire ingestion lock: %w", err)
	}

	if !acquired {
		owner, getErr := l.redis.Get(ctx, l.key).Result()
		if getErr != nil && !errors.Is(getErr, redis.Nil) {
			return fmt.Errorf("failed to check ingestion lock owner: %w", getErr)
		}

		return fmt.Errorf("%w: key %s owner %s", ErrLockHeld, l.key, owner)
	}

	l.log.WithFields(logrus.Fields{
		"key":         l.key,
		"instance_id": l.instanceID,
		"ttl":         leaseTTL,
	}).Debug("Acquired ingestion lock")

	l.wg.Add(1)
	go l.renew(ctx)

	return nil
}

func (l *lock) renew(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := l.redis.Expire(ctx, l.key, leaseTTL).Err(); err != nil {
				l.log.WithError(err).Warn("Failed to renew ingestion lock lease")
			}
		}
	}
}

func (l *lock) Release(ctx context.Context) {
	close(l.done)
	l.wg.Wait()

	owner, err := l.redis.Get(ctx, l.key).Result()
	if err == nil && owner == l.instanceID {
		if err := l.redis.Del(ctx, l.key).Err(); err != nil {
			l.log.WithError(err).Warn("Failed to delete ingestion lock")
		} else {
			l.log.WithField("key", l.key).Debug("Released ingestion lock")
		}
	}

	if err := l.redis.Close(); err != nil {
		l.log.WithError(err).Warn("Failed to close Redis client")
	}
}
