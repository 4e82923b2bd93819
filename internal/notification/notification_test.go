package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go-ingenico/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkFunc func(ctx context.Context, ev payment.Event) error

func (f sinkFunc) Publish(ctx context.Context, ev payment.Event) error { return f(ctx, ev) }

func TestDispatcherFansOut(t *testing.T) {
	var mu sync.Mutex
	got := map[string]payment.EventType{}
	record := func(name string) sinkFunc {
		return func(_ context.Context, ev payment.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got[name] = ev.Type
			return nil
		}
	}

	d := NewDispatcher(nil).
		Add("a", record("a")).
		Add("broken", sinkFunc(func(context.Context, payment.Event) error { return errors.New("boom") })).
		Add("none", nil).
		Add("b", record("b"))

	assert.Equal(t, []string{"a", "broken", "b"}, d.Sinks())

	require.NoError(t, d.Publish(context.Background(), payment.Event{Type: payment.EventPaid, OrderID: 1}))
	d.Wait()

	assert.Equal(t, map[string]payment.EventType{"a": payment.EventPaid, "b": payment.EventPaid}, got)
}

func TestDispatcherIgnoresCallerCancellation(t *testing.T) {
	done := make(chan error, 1)
	d := NewDispatcher(nil).Add("ctx", sinkFunc(func(ctx context.Context, _ payment.Event) error {
		done <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Publish(ctx, payment.Event{Type: payment.EventPaid}))
	d.Wait()

	assert.NoError(t, <-done)
}

type pointerSink struct{}

func (*pointerSink) Publish(context.Context, payment.Event) error { return nil }

func TestDispatcherSkipsTypedNil(t *testing.T) {
	var unset *pointerSink
	d := NewDispatcher(nil).Add("unset", unset)
	assert.Empty(t, d.Sinks())
}
