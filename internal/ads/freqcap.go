package ads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atharv404/kumele-ads/internal/config"
	"github.com/atharv404/kumele-ads/internal/models"
	"github.com/atharv404/kumele-ads/internal/storage"
)

// CapPolicy holds the frequency-cap thresholds. The three checks are the
// contract; the numbers are configuration.
type CapPolicy struct {
	MaxViewsPerAd         int64
	ViewWindow            time.Duration
	RepeatInterval        time.Duration
	MaxViewsPerAdvertiser int64
}

// CapPolicyFromConfig builds the policy from the ads configuration section.
func CapPolicyFromConfig(cfg config.AdsConfig) CapPolicy {
	return CapPolicy{
		MaxViewsPerAd:         cfg.CapMaxViewsPerAd,
		ViewWindow:            cfg.CapViewWindow,
		RepeatInterval:        cfg.CapRepeatInterval,
		MaxViewsPerAdvertiser: cfg.CapMaxViewsPerAdvertiser,
	}
}

// CapEvaluator answers the three independent frequency-cap checks evaluated
// per candidate during ranking. A candidate failing any one check is skipped
// whole. Implementations are pure queries over event history; a storage
// error here is a hard failure, since capping cannot be guessed.
type CapEvaluator interface {
	CanShowAd(ctx context.Context, userID, adID string) (bool, error)
	CanRepeatAd(ctx context.Context, userID, adID string) (bool, error)
	CanShowAdvertiser(ctx context.Context, userID, advertiserID string) (bool, error)
}

// CapRecorder receives accepted view events so cached cap counters stay
// current. The event store itself needs no recording.
type CapRecorder interface {
	RecordView(ctx context.Context, userID, adID, advertiserID string, at time.Time) error
}

// =============================================
// EVENT-STORE EVALUATOR
// =============================================

// StoreCapEvaluator evaluates caps straight from the event store.
type StoreCapEvaluator struct {
	events storage.EventStore
	policy CapPolicy
}

func NewStoreCapEvaluator(events storage.EventStore, policy CapPolicy) *StoreCapEvaluator {
	return &StoreCapEvaluator{events: events, policy: policy}
}

func (e *StoreCapEvaluator) CanShowAd(ctx context.Context, userID, adID string) (bool, error) {
	if e.policy.MaxViewsPerAd <= 0 {
		return true, nil
	}
	since := time.Now().Add(-e.policy.ViewWindow)
	n, err := e.events.CountUserAdEvents(ctx, userID, adID, models.EventTypeView, since)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate ad view cap: %w", err)
	}
	return n < e.policy.MaxViewsPerAd, nil
}

func (e *StoreCapEvaluator) CanRepeatAd(ctx context.Context, userID, adID string) (bool, error) {
	if e.policy.RepeatInterval <= 0 {
		return true, nil
	}
	last, err := e.events.LastUserAdEvent(ctx, userID, adID, models.EventTypeView)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate repeat cap: %w", err)
	}
	if last == nil {
		return true, nil
	}
	return time.Since(*last) >= e.policy.RepeatInterval, nil
}

func (e *StoreCapEvaluator) CanShowAdvertiser(ctx context.Context, userID, advertiserID string) (bool, error) {
	if e.policy.MaxViewsPerAdvertiser <= 0 {
		return true, nil
	}
	since := time.Now().Add(-e.policy.ViewWindow)
	n, err := e.events.CountUserAdvertiserEvents(ctx, userID, advertiserID, models.EventTypeView, since)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate advertiser cap: %w", err)
	}
	return n < e.policy.MaxViewsPerAdvertiser, nil
}

// =============================================
// REDIS EVALUATOR
// =============================================

// RedisCapEvaluator evaluates caps from Redis counters the tracker maintains
// on accepted views. Counters are bucketed by UTC day, which approximates
// the rolling window. Counter read errors propagate; caps never fail open.
type RedisCapEvaluator struct {
	client *redis.Client
	policy CapPolicy
}

func NewRedisCapEvaluator(client *redis.Client, policy CapPolicy) *RedisCapEvaluator {
	return &RedisCapEvaluator{client: client, policy: policy}
}

func (e *RedisCapEvaluator) CanShowAd(ctx context.Context, userID, adID string) (bool, error) {
	if e.policy.MaxViewsPerAd <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("freq:ad:%s:%s:%s", userID, adID, models.StatDateOf(time.Now()))
	n, err := e.client.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to read ad view counter: %w", err)
	}
	return n < e.policy.MaxViewsPerAd, nil
}

func (e *RedisCapEvaluator) CanRepeatAd(ctx context.Context, userID, adID string) (bool, error) {
	if e.policy.RepeatInterval <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("freq:last:%s:%s", userID, adID)
	ts, err := e.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read last view timestamp: %w", err)
	}
	return time.Since(time.Unix(ts, 0)) >= e.policy.RepeatInterval, nil
}

func (e *RedisCapEvaluator) CanShowAdvertiser(ctx context.Context, userID, advertiserID string) (bool, error) {
	if e.policy.MaxViewsPerAdvertiser <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("freq:adv:%s:%s:%s", userID, advertiserID, models.StatDateOf(time.Now()))
	n, err := e.client.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to read advertiser view counter: %w", err)
	}
	return n < e.policy.MaxViewsPerAdvertiser, nil
}

// RecordView bumps the counters behind all three checks after an accepted
// view event. Called by the tracker; best effort there.
func (e *RedisCapEvaluator) RecordView(ctx context.Context, userID, adID, advertiserID string, at time.Time) error {
	day := models.StatDateOf(at)
	pipe := e.client.Pipeline()

	adKey := fmt.Sprintf("freq:ad:%s:%s:%s", userID, adID, day)
	pipe.Incr(ctx, adKey)
	pipe.Expire(ctx, adKey, 25*time.Hour)

	lastKey := fmt.Sprintf("freq:last:%s:%s", userID, adID)
	pipe.Set(ctx, lastKey, at.Unix(), 48*time.Hour)

	if advertiserID != "" {
		advKey := fmt.Sprintf("freq:adv:%s:%s:%s", userID, advertiserID, day)
		pipe.Incr(ctx, advKey)
		pipe.Expire(ctx, advKey, 25*time.Hour)
	}

	_, err := pipe.Exec(ctx)
	return err
}
