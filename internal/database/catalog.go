package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-ingenico/internal/models"
)

// CreateProduct creates a new product
func (db *DB) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO products (sku, name, price, stock) VALUES (?, ?, ?, ?)
	`, p.SKU, p.Name, p.Price.String(), p.Stock)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return db.GetProduct(ctx, id)
}

// GetProduct retrieves a single product by ID
func (db *DB) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := db.QueryRowContext(ctx, `
		SELECT id, sku, name, price, stock, created_at, updated_at FROM products WHERE id = ?
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddCartItem adds quantity of a product to a cart
func (db *DB) AddCartItem(ctx context.Context, cartToken string, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid quantity %d", quantity)
	}
	if _, err := db.GetProduct(ctx, productID); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_token, product_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT(cart_token, product_id) DO UPDATE SET quantity = quantity + excluded.quantity
	`, cartToken, productID, quantity)
	return err
}

// GetCartItems retrieves the cart contents priced at the current product price
func (db *DB) GetCartItems(ctx context.Context, cartToken string) ([]models.CartItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.cart_token, c.product_id, p.name, c.quantity, p.price
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.cart_token = ? ORDER BY c.product_id
	`, cartToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.CartToken, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// EmptyCart removes every line of a cart
func (db *DB) EmptyCart(ctx context.Context, cartToken string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_token = ?", cartToken)
	return err
}

// Cart is a shopper cart bound to its token.
type Cart struct {
	db    *DB
	token string
}

// Cart returns the cart identified by token
func (db *DB) Cart(token string) *Cart {
	return &Cart{db: db, token: token}
}

// Empty removes every line of the cart
func (c *Cart) Empty(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	return c.db.EmptyCart(ctx, c.token)
}
