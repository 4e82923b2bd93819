package database

import (
	"database/sql"
	"errors"
	"fmt"

	"go-ingenico/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// GetSetting retrieves a configuration value by key
func (db *DB) GetSetting(key string) (string, error) {
	var value sql.NullString
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value.String, err
}

// SaveSetting saves or updates a configuration value
func (db *DB) SaveSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// GetSettings retrieves all settings
func (db *DB) GetSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v.String
	}
	return settings, rows.Err()
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	query := `SELECT id, username, password, email, role, last_login, created_at, updated_at FROM users WHERE username = ?`
	var user models.User
	var lastLogin sql.NullTime
	var email sql.NullString

	err := db.QueryRow(query, username).Scan(
		&user.ID, &user.Username, &user.Password, &email, &user.Role, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, err
	}

	user.Email = email.String
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	return &user, nil
}

// UpdateUser updates a user's information
func (db *DB) UpdateUser(user *models.User) error {
	_, err := db.Exec(`
		UPDATE users SET
			password = ?,
			email = ?,
			role = ?,
			last_login = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		user.Password, user.Email, user.Role, user.LastLogin, user.ID,
	)
	return err
}

// CheckPassword reports whether password matches the user's bcrypt hash
func CheckPassword(user *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

// EnsureDefaultAdmin ensures that a default admin user exists
func (db *DB) EnsureDefaultAdmin(username, password string) error {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check for existing admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO users (username, password, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		username, string(hashedPassword), "admin@shop.local", "admin",
	)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	db.logger.Info("default admin user created", "username", username)
	return nil
}
