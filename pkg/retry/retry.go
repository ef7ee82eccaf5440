// Package retry implements the venue call retry policy: transient failures
// are retried forever with a fixed delay, terminal failures are surfaced
// immediately, and benign idempotency failures are treated as success.
//
// The policy favors availability of a long-running bot over fast failure: a
// persistently failing call retries until its context is cancelled, so every
// retry of an order-affecting operation is logged loudly for an operator to
// notice. High-frequency polling operations suppress that logging to avoid
// flooding.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultDelay = 20 * time.Second

type terminalError interface {
	error
	Terminal() bool
}

type benignError interface {
	error
	Benign() bool
}

// IsTerminal reports whether err is a business failure that must never be
// retried (bad symbol, invalid order, insufficient funds, malformed request).
func IsTerminal(err error) bool {
	var t terminalError
	return errors.As(err, &t) && t.Terminal()
}

// IsBenign reports whether err signals that the operation's intent is
// already satisfied (order already done, order not found on cancel).
func IsBenign(err error) bool {
	var b benignError
	return errors.As(err, &b) && b.Benign()
}

// Policy retries operations with a fixed delay. The timer is injectable so
// tests can drive retries deterministically.
type Policy struct {
	delay  time.Duration
	logger *zap.Logger
	quiet  map[string]struct{}
	timer  func(d time.Duration) <-chan time.Time
}

// Option configures a Policy.
type Option func(*Policy)

// WithDelay overrides the fixed retry delay.
func WithDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.delay = d
	}
}

// WithQuietOps marks operations whose retries are logged at debug level only.
func WithQuietOps(ops ...string) Option {
	return func(p *Policy) {
		for _, op := range ops {
			p.quiet[op] = struct{}{}
		}
	}
}

// WithTimer replaces the delay timer, for deterministic tests.
func WithTimer(timer func(d time.Duration) <-chan time.Time) Option {
	return func(p *Policy) {
		p.timer = timer
	}
}

// New creates a Policy with the given logger and options.
func New(logger *zap.Logger, opts ...Option) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Policy{
		delay:  defaultDelay,
		logger: logger,
		quiet:  make(map[string]struct{}),
		timer:  time.After,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do executes fn, retrying transient failures until fn succeeds, returns a
// terminal error, or ctx is cancelled. Benign failures return nil.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsBenign(err) {
			p.logger.Debug("operation already satisfied, treating as success",
				zap.String("op", op), zap.Error(err))
			return nil
		}
		if IsTerminal(err) {
			return err
		}

		attempt++
		if _, quiet := p.quiet[op]; quiet {
			p.logger.Debug("transient failure, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		} else {
			p.logger.Error("venue call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", p.delay),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.timer(p.delay):
		}
	}
}

// DoWithData executes fn under the policy and returns its value.
func DoWithData[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
