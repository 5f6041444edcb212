package db

import (
	"context"
	"database/sql"
	"time"
)

// GetItem returns the value stored under key.
// found is false when no row exists; err is reserved for I/O failures.
func GetItem(ctx context.Context, db *sql.DB, key string) (value string, found bool, err error) {
	err = db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetItem overwrites the value under key in a single statement.
func SetItem(ctx context.Context, db *sql.DB, key, value string) error {
	query := `
		INSERT INTO local_storage (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query, key, value, time.Now().Unix())
	return err
}

// RemoveItem deletes key. Removing a missing key is not an error.
func RemoveItem(ctx context.Context, db *sql.DB, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, key)
	return err
}
