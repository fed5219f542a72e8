package emitter

import (
	"context"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
)

// RetryConfig tunes how a stateless emitter's ChannelFactory is retried:
// binary exponential backoff between attempts, capped, with an optional
// limit on the number of attempts.
type RetryConfig struct {
	BackoffFactor time.Duration
	BackoffCap    time.Duration
	Limit         uint // 0 means retry until ctx is done.
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 100 * time.Millisecond
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = time.Second
	}
	return c
}

// dialWithRetry calls factory until it succeeds, ctx is done, or the
// configured attempt limit is exhausted.
func dialWithRetry(ctx context.Context, factory func(context.Context) (Channel, error), cfg RetryConfig) (Channel, error) {
	cfg = cfg.withDefaults()
	strategies := makeRetryStrategies(cfg.BackoffFactor, cfg.BackoffCap, cfg.Limit)

	var channel Channel
	err := retry.Retry(func(attempt uint) error {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var err error
		channel, err = factory(ctx)
		return err
	}, strategies...)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return channel, nil
}

// makeRetryStrategies builds a cap on attempts (when limit > 0) followed by
// a binary-exponential backoff strategy, capped so a run of failures doesn't
// produce an unbounded sleep.
func makeRetryStrategies(factor, cap time.Duration, limit uint) []strategy.Strategy {
	backoffFn := backoff.BinaryExponential(factor)

	var strategies []strategy.Strategy
	if limit > 0 {
		strategies = append(strategies, strategy.Limit(limit))
	}

	strategies = append(strategies, func(attempt uint) bool {
		if attempt > 0 {
			duration := backoffFn(attempt)
			if duration > cap || duration <= 0 {
				duration = cap
			}
			time.Sleep(duration)
		}
		return true
	})

	return strategies
}
