package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type terminalErr struct{ msg string }

func (e *terminalErr) Error() string  { return e.msg }
func (e *terminalErr) Terminal() bool { return true }

type benignErr struct{ msg string }

func (e *benignErr) Error() string { return e.msg }
func (e *benignErr) Benign() bool  { return true }

// fakeTimer fires immediately and counts scheduled delays.
func fakeTimer(fired *int) func(d time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		*fired++
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
}

func TestPolicy_RetriesTransientUntilSuccess(t *testing.T) {
	var waits int
	p := New(zap.NewNop(), WithTimer(fakeTimer(&waits)))

	calls := 0
	err := p.Do(context.Background(), "getBalance", func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, waits)
}

func TestPolicy_TerminalErrorSurfacesImmediately(t *testing.T) {
	var waits int
	p := New(zap.NewNop(), WithTimer(fakeTimer(&waits)))

	calls := 0
	boom := &terminalErr{msg: "bad symbol"}
	err := p.Do(context.Background(), "placeOrder", func(ctx context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Zero(t, waits)
}

func TestPolicy_BenignErrorIsSuccess(t *testing.T) {
	p := New(zap.NewNop())

	err := p.Do(context.Background(), "cancelOrder", func(ctx context.Context) error {
		return &benignErr{msg: "order already done"}
	})
	assert.NoError(t, err)
}

func TestPolicy_ContextCancelStopsRetrying(t *testing.T) {
	p := New(zap.NewNop(), WithTimer(func(d time.Duration) <-chan time.Time {
		return make(chan time.Time) // never fires
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	err := p.Do(ctx, "getBalance", func(ctx context.Context) error {
		return errors.New("still failing")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData_ReturnsValue(t *testing.T) {
	var waits int
	p := New(zap.NewNop(), WithTimer(fakeTimer(&waits)))

	calls := 0
	got, err := DoWithData(context.Background(), p, "getQuote", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("rate limited")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, waits)
}

func TestIsTerminalAndIsBenign(t *testing.T) {
	wrapped := errors.Wrap(&terminalErr{msg: "min notional"}, "submit order")
	assert.True(t, IsTerminal(wrapped))
	assert.False(t, IsBenign(wrapped))

	assert.True(t, IsBenign(errors.Wrap(&benignErr{msg: "unknown order"}, "cancel")))
	assert.False(t, IsTerminal(errors.New("plain")))
}
