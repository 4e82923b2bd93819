package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go-ingenico/internal/models"
	"go-ingenico/internal/payment/ingenico"
)

// RecordExchange stores one masked gateway exchange in the audit log
func (db *DB) RecordExchange(ctx context.Context, rec ingenico.AuditRecord) error {
	headers, err := json.Marshal(rec.RequestHeaders)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO gateway_audit_log
			(operation, method, path, headers, request_body, status_code, response_body, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Operation, rec.Method, rec.Path, string(headers), rec.RequestBody, rec.StatusCode,
		rec.ResponseBody, rec.Error, rec.Duration.Milliseconds(), sqliteTime(createdAt))
	return err
}

// GetAuditLog retrieves the most recent gateway exchanges
func (db *DB) GetAuditLog(ctx context.Context, limit, offset int) ([]*models.AuditEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, operation, method, path, headers, request_body, status_code, response_body, error, duration_ms, created_at
		FROM gateway_audit_log ORDER BY id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var headers, reqBody, respBody, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Operation, &e.Method, &e.Path, &headers, &reqBody, &e.StatusCode,
			&respBody, &errMsg, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Headers, e.RequestBody, e.ResponseBody, e.Error = headers.String, reqBody.String, respBody.String, errMsg.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// PruneAuditLog deletes exchanges recorded before cutoff
func (db *DB) PruneAuditLog(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM gateway_audit_log WHERE created_at < ?", sqliteTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
