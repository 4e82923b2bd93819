// Package notification fans payment events out to the configured channels.
package notification

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"go-ingenico/internal/payment"
)

// DefaultTimeout bounds how long one sink may take for one event.
const DefaultTimeout = 15 * time.Second

type namedSink struct {
	name string
	sink payment.EventSink
}

// Dispatcher implements payment.EventSink by forwarding every event to each
// registered sink in the background. Sink failures are logged and never
// reach the payment flow.
type Dispatcher struct {
	sinks   []namedSink
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates an empty Dispatcher
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{logger: logger.With("component", "notification"), timeout: DefaultTimeout}
}

// Add registers a sink under name. Nil sinks are ignored so optional
// channels can be passed unconditionally.
func (d *Dispatcher) Add(name string, sink payment.EventSink) *Dispatcher {
	if sink != nil && !isNilPointer(sink) {
		d.sinks = append(d.sinks, namedSink{name: name, sink: sink})
	}
	return d
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// Sinks returns the registered sink names
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.name)
	}
	return names
}

// Publish queues ev for every sink and returns immediately.
func (d *Dispatcher) Publish(ctx context.Context, ev payment.Event) error {
	ctx = context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s namedSink) {
			defer d.wg.Done()
			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			if err := s.sink.Publish(sctx, ev); err != nil {
				d.logger.Warn("notification failed", "sink", s.name, "type", ev.Type, "order_id", ev.OrderID, "error", err)
			}
		}(s)
	}
	return nil
}

// Wait blocks until every queued notification finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
