// Package retry provides call-site retry policies for transient store failures.
//
// A Policy is a value: each caller picks the policy that matches the operation, so
// booking writes and best-effort reads are governed separately. Only errors that
// pkg/errors classifies as retryable are retried; business rejections return on the
// first attempt.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	Name            string
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// None runs the operation exactly once.
var None = Policy{Name: "none", MaxAttempts: 1}

// Policies groups the named policies built from configuration.
type Policies struct {
	Critical   Policy
	BestEffort Policy
}

// FromConfig builds the critical and best-effort policies.
func FromConfig(cfg config.RetryConfig) Policies {
	return Policies{
		Critical: Policy{
			Name:            "critical",
			MaxAttempts:     cfg.CriticalAttempts,
			InitialInterval: cfg.CriticalBackoff,
			MaxInterval:     cfg.MaxBackoff,
		},
		BestEffort: Policy{
			Name:            "best_effort",
			MaxAttempts:     cfg.BestEffortAttempts,
			InitialInterval: cfg.BestEffortBackoff,
			MaxInterval:     cfg.MaxBackoff,
		},
	}
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts are
// exhausted or ctx is done.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 1 {
		return op(ctx)
	}

	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !appErrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
