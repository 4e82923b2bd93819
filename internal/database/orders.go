package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-ingenico/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrEmptyCart is returned when an order is placed from an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

const orderColumns = `id, order_key, customer_id, cart_token, currency, total, status, transaction_id,
	payment_method, billing_email, billing_phone, push_token, paid_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var cartToken, txID, email, phone, pushToken sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(&o.ID, &o.OrderKey, &o.CustomerID, &cartToken, &o.Currency, &o.Total, &o.Status, &txID,
		&o.PaymentMethod, &email, &phone, &pushToken, &paidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.CartToken = cartToken.String
	o.TransactionID = txID.String
	o.BillingEmail = email.String
	o.BillingPhone = phone.String
	o.PushToken = pushToken.String
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	return &o, nil
}

func (db *DB) getOrderWhere(ctx context.Context, where string, arg any) (*models.Order, error) {
	o, err := scanOrder(db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %v: %w", arg, ErrNotFound)
	}
	return o, err
}

// GetOrder retrieves a single order by ID
func (db *DB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return db.getOrderWhere(ctx, "id = ?", id)
}

// GetOrderByKey retrieves an order by its public order key
func (db *DB) GetOrderByKey(ctx context.Context, key string) (*models.Order, error) {
	if key == "" {
		return nil, fmt.Errorf("empty order key: %w", ErrNotFound)
	}
	return db.getOrderWhere(ctx, "order_key = ?", key)
}

// GetOrderByTransactionID retrieves the order holding a hosted checkout id
func (db *DB) GetOrderByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("empty transaction id: %w", ErrNotFound)
	}
	return db.getOrderWhere(ctx, "transaction_id = ?", transactionID)
}

// GetOrderDetails loads an order with its items and notes
func (db *DB) GetOrderDetails(ctx context.Context, id int64) (*models.Order, error) {
	o, err := db.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Items, err = db.GetOrderItems(ctx, id); err != nil {
		return nil, err
	}
	if o.Notes, err = db.GetOrderNotes(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

// NewOrder is the checkout form data used to place an order
type NewOrder struct {
	CartToken    string
	CustomerID   int64
	Currency     string
	BillingEmail string
	BillingPhone string
	PushToken    string
}

// CreateOrderFromCart places a pending order for the cart contents. The cart
// itself is left untouched; it is emptied once the payment redirect is issued.
func (db *DB) CreateOrderFromCart(ctx context.Context, in NewOrder) (*models.Order, error) {
	items, err := db.GetCartItems(ctx, in.CartToken)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	key := "wc_order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:13]

	var id int64
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO orders (order_key, customer_id, cart_token, currency, total, status, billing_email, billing_phone, push_token)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, key, in.CustomerID, in.CartToken, strings.ToUpper(in.Currency), total.StringFixed(2), models.OrderPending,
			in.BillingEmail, in.BillingPhone, in.PushToken)
		if err != nil {
			return err
		}
		id, _ = res.LastInsertId()

		for _, item := range items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, product_id, name, quantity, unit_price) VALUES (?, ?, ?, ?, ?)
			`, id, item.ProductID, item.Name, item.Quantity, item.UnitPrice.String()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return db.GetOrderDetails(ctx, id)
}

// GetOrderItems retrieves the line items of an order
func (db *DB) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, quantity, unit_price FROM order_items WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetTransactionID stores the hosted checkout id, replacing any earlier one
func (db *DB) SetTransactionID(ctx context.Context, id int64, transactionID string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE orders SET transaction_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, transactionID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

// TransitionStatus moves an order from one status to another only if it is
// still in from. It reports whether the row changed.
func (db *DB) TransitionStatus(ctx context.Context, id int64, from, to models.OrderStatus) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE orders SET
			status = ?,
			paid_at = CASE WHEN ? = 'paid' THEN CURRENT_TIMESTAMP ELSE paid_at END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, to, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders WHERE id = ?", id).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return false, nil
}

// ReduceStock subtracts the ordered quantities from product stock
func (db *DB) ReduceStock(ctx context.Context, orderID int64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE products SET
			stock = stock - (SELECT COALESCE(SUM(quantity), 0) FROM order_items WHERE order_id = ? AND product_id = products.id),
			updated_at = CURRENT_TIMESTAMP
		WHERE id IN (SELECT product_id FROM order_items WHERE order_id = ?)
	`, orderID, orderID)
	return err
}

// AddNote appends a note to an order
func (db *DB) AddNote(ctx context.Context, id int64, note string) error {
	_, err := db.ExecContext(ctx, "INSERT INTO order_notes (order_id, note) VALUES (?, ?)", id, note)
	return err
}

// GetOrderNotes retrieves the notes of an order, oldest first
func (db *DB) GetOrderNotes(ctx context.Context, orderID int64) ([]models.OrderNote, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_id, note, created_at FROM order_notes WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.OrderNote
	for rows.Next() {
		var n models.OrderNote
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Note, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// GetStalePendingOrders lists pending orders with an open hosted checkout that
// have not changed since before.
func (db *DB) GetStalePendingOrders(ctx context.Context, before time.Time, limit int) ([]*models.Order, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ? AND transaction_id IS NOT NULL AND transaction_id <> '' AND updated_at < ?
		ORDER BY updated_at LIMIT ?
	`, models.OrderPending, sqliteTime(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
