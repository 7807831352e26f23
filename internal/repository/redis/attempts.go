package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/tenant-access/internal/core/port"
)

const defaultAttemptPrefix = "access:attempts"

var errNonPositiveWindow = errors.New("window must be positive")

// AttemptWindow keeps attempt timestamps in one sorted set per key, scored by unix nanoseconds.
type AttemptWindow struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewAttemptWindow builds the store. ttl bounds how long an idle key survives and should be at
// least the longest throttle window.
func NewAttemptWindow(client *red.Client, keyPrefix string, ttl time.Duration) *AttemptWindow {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultAttemptPrefix
	}
	return &AttemptWindow{client: client, prefix: prefix, ttl: ttl}
}

// RecordAttempt adds at to the window and refreshes the key expiry in one round trip.
func (w *AttemptWindow) RecordAttempt(ctx context.Context, key string, at time.Time) error {
	redisKey := w.key(key)
	nanos := at.UnixNano()

	_, err := w.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.ZAdd(ctx, redisKey, red.Z{Score: float64(nanos), Member: strconv.FormatInt(nanos, 10)})
		if w.ttl > 0 {
			pipe.Expire(ctx, redisKey, w.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// CountAttempts counts attempts inside (reference-window, reference].
func (w *AttemptWindow) CountAttempts(ctx context.Context, key string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errNonPositiveWindow
	}
	count, err := w.client.ZCount(ctx, w.key(key), score(reference.Add(-window)), score(reference)).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return int(count), nil
}

// TrimWindow drops attempts at or before reference-window.
func (w *AttemptWindow) TrimWindow(ctx context.Context, key string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errNonPositiveWindow
	}
	if err := w.client.ZRemRangeByScore(ctx, w.key(key), "-inf", score(reference.Add(-window))).Err(); err != nil {
		return fmt.Errorf("trim attempts: %w", err)
	}
	return nil
}

// OldestAttempt returns the earliest attempt still inside the window.
func (w *AttemptWindow) OldestAttempt(ctx context.Context, key string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errNonPositiveWindow
	}

	values, err := w.client.ZRangeByScore(ctx, w.key(key), &red.ZRangeBy{
		Min:   score(reference.Add(-window)),
		Max:   score(reference),
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest attempt: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse attempt timestamp: %w", err)
	}
	return time.Unix(0, nanos), true, nil
}

func (w *AttemptWindow) key(key string) string {
	return w.prefix + ":" + key
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

var _ port.AttemptStore = (*AttemptWindow)(nil)
