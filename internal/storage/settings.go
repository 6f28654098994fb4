package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetGlobalSetting returns the value stored under key, or ErrNotFound.
func (db *DB) GetGlobalSetting(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM global_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get global setting: %w", err)
	}
	return value, nil
}

// SetGlobalSetting stores a key/value pair, replacing any prior value.
func (db *DB) SetGlobalSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO global_settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now())
	if err != nil {
		return fmt.Errorf("set global setting: %w", err)
	}
	return nil
}
