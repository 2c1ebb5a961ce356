// Package security tracks denial velocity per principal in Redis so
// repeated authorization failures surface quickly, independent of the
// durable audit trail.
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

const keyPrefix = "authz:failures:"

// Config tunes the tracker. Zero values fall back to defaults.
type Config struct {
	// Window is how long a failure stays counted. Default 15m.
	Window time.Duration

	// Threshold marks a principal suspicious at or above this many failures
	// inside the window. Default 10.
	Threshold int64
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.Threshold <= 0 {
		c.Threshold = 10
	}
	return c
}

// Offender is one principal with its live failure count.
type Offender struct {
	PrincipalID string `json:"principal_id"`
	Count       int64  `json:"count"`
}

// Tracker counts denied decisions per principal inside a rolling window.
// All operations are best-effort: Redis being down never blocks decisions.
type Tracker struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// NewTracker builds a tracker on an existing Redis client.
func NewTracker(client *redis.Client, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// Threshold returns the configured suspicion threshold.
func (t *Tracker) Threshold() int64 { return t.cfg.Threshold }

// RecordFailure implements authz.FailureTracker. The first failure starts
// the window; crossing the threshold is logged once.
func (t *Tracker) RecordFailure(ctx context.Context, principalID string) {
	if t == nil || t.client == nil || principalID == "" {
		return
	}
	key := keyPrefix + principalID
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		t.logger.Warn("failure counter unavailable", slog.String("principal_id", principalID), slog.Any("error", err))
		return
	}
	if count == 1 {
		if err := t.client.Expire(ctx, key, t.cfg.Window).Err(); err != nil {
			t.logger.Warn("failure counter expiry", slog.String("principal_id", principalID), slog.Any("error", err))
		}
	}
	if count == t.cfg.Threshold {
		t.logger.Warn("principal crossed failure threshold",
			slog.String("principal_id", principalID),
			slog.Int64("count", count),
			slog.Duration("window", t.cfg.Window),
		)
	}
}

// FailureCount returns the live count inside the current window.
func (t *Tracker) FailureCount(ctx context.Context, principalID string) (int64, error) {
	if t == nil || t.client == nil {
		return 0, nil
	}
	val, err := t.client.Get(ctx, keyPrefix+principalID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("security: read failure count: %w", err)
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("security: parse failure count: %w", err)
	}
	return count, nil
}

// IsSuspicious reports whether the principal reached the threshold.
func (t *Tracker) IsSuspicious(ctx context.Context, principalID string) (bool, error) {
	count, err := t.FailureCount(ctx, principalID)
	if err != nil {
		return false, err
	}
	return count >= t.cfg.Threshold, nil
}

// Reset clears the counter, typically after an operator reviewed the
// principal.
func (t *Tracker) Reset(ctx context.Context, principalID string) error {
	if t == nil || t.client == nil {
		return nil
	}
	if err := t.client.Del(ctx, keyPrefix+principalID).Err(); err != nil {
		return fmt.Errorf("security: reset failure count: %w", err)
	}
	return nil
}

// TopOffenders scans the live counters and returns the highest ones,
// descending.
func (t *Tracker) TopOffenders(ctx context.Context, limit int) ([]Offender, error) {
	if t == nil || t.client == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var offenders []Offender
	iter := t.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := t.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("security: read offender %s: %w", key, err)
		}
		count, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		offenders = append(offenders, Offender{
			PrincipalID: strings.TrimPrefix(key, keyPrefix),
			Count:       count,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("security: scan offenders: %w", err)
	}

	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].Count != offenders[j].Count {
			return offenders[i].Count > offenders[j].Count
		}
		return offenders[i].PrincipalID < offenders[j].PrincipalID
	})
	if len(offenders) > limit {
		offenders = offenders[:limit]
	}
	return offenders, nil
}

var _ authz.FailureTracker = (*Tracker)(nil)
