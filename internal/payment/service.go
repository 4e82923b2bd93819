package payment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSupportedCurrencies are the settlement currencies the processor accepts.
var DefaultSupportedCurrencies = []string{"EUR", "USD", "CAD", "RUB", "CZK", "HUF", "PLN", "CHF", "AUD", "GBP", "THB"}

// Config holds the store-side gateway settings.
type Config struct {
	Enabled             bool
	TestMode            bool
	StoreCurrency       string
	SupportedCurrencies []string
	ReturnURL           string // base URL, the order id is appended
	Title               string
	Description         string
}

// Service implements Gateway on top of the processor API: it starts hosted
// checkouts, reconciles outcomes and issues refunds.
type Service struct {
	cfg            Config
	api            API
	store          OrderStore
	events         EventSink
	logger         *slog.Logger
	available      bool
	disabledReason string
	locks          *orderLocks
	now            func() time.Time
	newKey         func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithEventSink publishes lifecycle events to sink.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithKeyGenerator overrides refund idempotency key generation.
func WithKeyGenerator(gen func() string) Option {
	return func(s *Service) { s.newKey = gen }
}

// New creates a new Service. The currency gate is evaluated once here: a
// store currency outside the allow-list keeps the gateway disabled.
func New(cfg Config, api API, store OrderStore, logger *slog.Logger, opts ...Option) *Service {
	if len(cfg.SupportedCurrencies) == 0 {
		cfg.SupportedCurrencies = DefaultSupportedCurrencies
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Service{
		cfg:    cfg,
		api:    api,
		store:  store,
		logger: logger.With("component", "payment"),
		locks:  newOrderLocks(),
		now:    time.Now,
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.available = s.SupportsCurrency(cfg.StoreCurrency)
	switch {
	case !s.available:
		s.disabledReason = fmt.Sprintf("Ingenico does not support your store currency (%s).", cfg.StoreCurrency)
		s.logger.Warn("gateway disabled", "reason", s.disabledReason)
	case !cfg.Enabled:
		s.disabledReason = "Ingenico is disabled in settings."
	}
	return s
}

// IsAvailable reports whether shoppers may pay with this gateway.
func (s *Service) IsAvailable() bool {
	return s.cfg.Enabled && s.available
}

// DisabledReason explains why IsAvailable is false.
func (s *Service) DisabledReason() string {
	return s.disabledReason
}

// SupportsCurrency reports whether code is in the allow-list.
func (s *Service) SupportsCurrency(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range s.cfg.SupportedCurrencies {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// Config returns the gateway settings.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish payment event", "type", ev.Type, "order_id", ev.OrderID, "error", err)
	}
}

// orderLocks serializes work on the same order inside one process. The store's
// compare-and-set status update covers multi-process deployments.
type orderLocks struct {
	mu    sync.Mutex
	locks map[int64]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[int64]*orderLock)}
}

func (l *orderLocks) lock(id int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &orderLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
