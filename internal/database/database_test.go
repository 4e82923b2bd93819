package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go-ingenico/internal/models"
	"go-ingenico/internal/payment"
	"go-ingenico/internal/payment/ingenico"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ payment.OrderStore     = (*DB)(nil)
	_ payment.Cart           = (*Cart)(nil)
	_ ingenico.AuditRecorder = (*DB)(nil)
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// seedOrder places an order for two units of a product priced 19.995.
func seedOrder(t *testing.T, db *DB) (*models.Order, *models.Product) {
	t.Helper()
	ctx := context.Background()

	p, err := db.CreateProduct(ctx, &models.Product{SKU: "MUG-1", Name: "Mug", Price: decimal.RequireFromString("19.995"), Stock: 10})
	require.NoError(t, err)
	require.NoError(t, db.AddCartItem(ctx, "cart-1", p.ID, 1))
	require.NoError(t, db.AddCartItem(ctx, "cart-1", p.ID, 1))

	o, err := db.CreateOrderFromCart(ctx, NewOrder{CartToken: "cart-1", Currency: "eur", BillingEmail: "a@b.test"})
	require.NoError(t, err)
	return o, p
}

func TestCreateOrderFromCart(t *testing.T) {
	db := newTestDB(t)
	o, p := seedOrder(t, db)

	assert.Equal(t, models.OrderPending, o.Status)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, "39.99", o.Total.StringFixed(2))
	assert.Regexp(t, `^wc_order_[0-9a-f]{13}$`, o.OrderKey)
	require.Len(t, o.Items, 1)
	assert.Equal(t, p.ID, o.Items[0].ProductID)
	assert.Equal(t, 2, o.Items[0].Quantity)

	byKey, err := db.GetOrderByKey(context.Background(), o.OrderKey)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byKey.ID)
}

func TestCreateOrderFromEmptyCart(t *testing.T) {
	db := newTestDB(t)
	_, err := db.CreateOrderFromCart(context.Background(), NewOrder{CartToken: "nothing", Currency: "EUR"})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestAddCartItemUnknownProduct(t *testing.T) {
	db := newTestDB(t)
	err := db.AddCartItem(context.Background(), "cart", 999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, db.AddCartItem(context.Background(), "cart", 1, 0))
}

func TestCartEmpty(t *testing.T) {
	db := newTestDB(t)
	seedOrder(t, db)
	ctx := context.Background()

	require.NoError(t, db.Cart("cart-1").Empty(ctx))
	items, err := db.GetCartItems(ctx, "cart-1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, db.Cart("").Empty(ctx))
}

func TestTransitionStatusIsCompareAndSet(t *testing.T) {
	db := newTestDB(t)
	o, _ := seedOrder(t, db)
	ctx := context.Background()

	ok, err := db.TransitionStatus(ctx, o.ID, models.OrderPending, models.OrderPaid)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TransitionStatus(ctx, o.ID, models.OrderPending, models.OrderFailed)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)
	assert.NotNil(t, got.PaidAt)

	_, err = db.TransitionStatus(ctx, 4242, models.OrderPending, models.OrderPaid)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetTransactionID(t *testing.T) {
	db := newTestDB(t)
	o, _ := seedOrder(t, db)
	ctx := context.Background()

	require.NoError(t, db.SetTransactionID(ctx, o.ID, "first"))
	require.NoError(t, db.SetTransactionID(ctx, o.ID, "second"))

	got, err := db.GetOrderByTransactionID(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = db.GetOrderByTransactionID(ctx, "first")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetOrderByTransactionID(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.SetTransactionID(ctx, 4242, "x"), ErrNotFound)
}

func TestReduceStock(t *testing.T) {
	db := newTestDB(t)
	o, p := seedOrder(t, db)
	ctx := context.Background()

	require.NoError(t, db.ReduceStock(ctx, o.ID))
	got, err := db.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)
}

func TestOrderNotes(t *testing.T) {
	db := newTestDB(t)
	o, _ := seedOrder(t, db)
	ctx := context.Background()

	require.NoError(t, db.AddNote(ctx, o.ID, "first"))
	require.NoError(t, db.AddNote(ctx, o.ID, "second"))

	details, err := db.GetOrderDetails(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, details.Notes, 2)
	assert.Equal(t, "first", details.Notes[0].Note)
	assert.Equal(t, "second", details.Notes[1].Note)
}

func TestGetStalePendingOrders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	open, _ := seedOrder(t, db)
	require.NoError(t, db.SetTransactionID(ctx, open.ID, "hc-1"))

	require.NoError(t, db.AddCartItem(ctx, "cart-2", open.Items[0].ProductID, 1))
	noSession, err := db.CreateOrderFromCart(ctx, NewOrder{CartToken: "cart-2", Currency: "EUR"})
	require.NoError(t, err)

	orders, err := db.GetStalePendingOrders(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, open.ID, orders[0].ID)
	assert.NotEqual(t, noSession.ID, orders[0].ID)

	orders, err = db.GetStalePendingOrders(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestAuditLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := ingenico.AuditRecord{
		Operation:      "find_payment",
		Method:         "GET",
		Path:           "/v1/1234/payments",
		RequestHeaders: map[string]string{"Authorization": "GCS v1HMAC:***:***"},
		StatusCode:     200,
		CreatedAt:      time.Now().Add(-48 * time.Hour),
	}
	recent := old
	recent.Operation = "create_hosted_checkout"
	recent.Duration = 150 * time.Millisecond
	recent.CreatedAt = time.Time{}

	require.NoError(t, db.RecordExchange(ctx, old))
	require.NoError(t, db.RecordExchange(ctx, recent))

	entries, err := db.GetAuditLog(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "create_hosted_checkout", entries[0].Operation)
	assert.Equal(t, int64(150), entries[0].DurationMs)
	assert.Contains(t, entries[0].Headers, "GCS v1HMAC:***:***")

	n, err := db.PruneAuditLog(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSettings(t *testing.T) {
	db := newTestDB(t)

	v, err := db.GetSetting("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, db.SaveSetting("ingenico_merchant_id", "1"))
	require.NoError(t, db.SaveSetting("ingenico_merchant_id", "2"))

	all, err := db.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ingenico_merchant_id": "2"}, all)
}

func TestEnsureDefaultAdmin(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.EnsureDefaultAdmin("admin", "s3cret"))
	require.NoError(t, db.EnsureDefaultAdmin("admin", "other"))

	user, err := db.GetUserByUsername("admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)
	assert.True(t, CheckPassword(user, "s3cret"))
	assert.False(t, CheckPassword(user, "other"))

	_, err = db.GetUserByUsername("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
