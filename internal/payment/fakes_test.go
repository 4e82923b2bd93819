package payment

import (
	"context"
	"errors"
	"sync"

	"go-ingenico/internal/models"
	"go-ingenico/internal/payment/ingenico"

	"github.com/shopspring/decimal"
)

var errNoRows = errors.New("sql: no rows in result set")

type fakeAPI struct {
	mu          sync.Mutex
	createCalls []ingenico.CheckoutRequest
	findCalls   []string
	statusCalls []string
	refundCalls []ingenico.RefundRequest
	CreateFunc  func(req ingenico.CheckoutRequest) (*ingenico.HostedCheckout, error)
	FindFunc    func(ref string) (ingenico.Payment, bool, error)
	StatusFunc  func(id string) (*ingenico.CheckoutStatus, error)
	RefundFunc  func(req ingenico.RefundRequest) (*ingenico.Refund, error)
}

func (f *fakeAPI) CreateHostedCheckout(_ context.Context, req ingenico.CheckoutRequest) (*ingenico.HostedCheckout, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, req)
	f.mu.Unlock()
	if f.CreateFunc != nil {
		return f.CreateFunc(req)
	}
	return &ingenico.HostedCheckout{ID: "abc123", RedirectURL: ingenico.RedirectHostPrefix + "x/y", PartialRedirectURL: "x/y"}, nil
}

func (f *fakeAPI) FindPayment(_ context.Context, ref string) (ingenico.Payment, bool, error) {
	f.mu.Lock()
	f.findCalls = append(f.findCalls, ref)
	f.mu.Unlock()
	if f.FindFunc != nil {
		return f.FindFunc(ref)
	}
	return ingenico.Payment{}, false, nil
}

func (f *fakeAPI) GetCheckoutStatus(_ context.Context, id string) (*ingenico.CheckoutStatus, error) {
	f.mu.Lock()
	f.statusCalls = append(f.statusCalls, id)
	f.mu.Unlock()
	if f.StatusFunc != nil {
		return f.StatusFunc(id)
	}
	return &ingenico.CheckoutStatus{Status: ingenico.CheckoutInProgress}, nil
}

func (f *fakeAPI) CreateRefund(_ context.Context, req ingenico.RefundRequest) (*ingenico.Refund, error) {
	f.mu.Lock()
	f.refundCalls = append(f.refundCalls, req)
	f.mu.Unlock()
	if f.RefundFunc != nil {
		return f.RefundFunc(req)
	}
	return &ingenico.Refund{ID: "ref-1", Status: "REFUND_REQUESTED"}, nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls) + len(f.findCalls) + len(f.statusCalls) + len(f.refundCalls)
}

type memStore struct {
	mu         sync.Mutex
	orders     map[int64]*models.Order
	notes      map[int64][]string
	stockCalls map[int64]int
	setTxErr   error
}

func newMemStore(orders ...*models.Order) *memStore {
	s := &memStore{
		orders:     make(map[int64]*models.Order),
		notes:      make(map[int64][]string),
		stockCalls: make(map[int64]int),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errNoRows
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) find(match func(*models.Order) bool) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if match(o) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, errNoRows
}

func (s *memStore) GetOrderByKey(_ context.Context, key string) (*models.Order, error) {
	return s.find(func(o *models.Order) bool { return o.OrderKey == key })
}

func (s *memStore) GetOrderByTransactionID(_ context.Context, txID string) (*models.Order, error) {
	return s.find(func(o *models.Order) bool { return o.TransactionID == txID })
}

func (s *memStore) SetTransactionID(_ context.Context, id int64, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setTxErr != nil {
		return s.setTxErr
	}
	o, ok := s.orders[id]
	if !ok {
		return errNoRows
	}
	o.TransactionID = txID
	return nil
}

func (s *memStore) TransitionStatus(_ context.Context, id int64, from, to models.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, errNoRows
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (s *memStore) AddNote(_ context.Context, id int64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[id] = append(s.notes[id], note)
	return nil
}

func (s *memStore) ReduceStock(_ context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stockCalls[orderID]++
	return nil
}

func (s *memStore) status(id int64) models.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

func (s *memStore) notesFor(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes[id]...)
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stockCalls[id]
}

type fakeCart struct {
	emptied int
	err     error
}

func (c *fakeCart) Empty(context.Context) error {
	c.emptied++
	return c.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func testOrder(status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:       1001,
		OrderKey: "wc_order_1001",
		Currency: "USD",
		Total:    decimal.RequireFromString("49.99"),
		Status:   status,
	}
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		StoreCurrency: "USD",
		ReturnURL:     "https://shop.test/checkout/return",
	}
}
