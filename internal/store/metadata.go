package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetImportedFileHash returns the SHA-256 recorded for a catalog file.
// Returns empty string and nil error if the file was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, name string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT sha256 FROM catalog_imports WHERE name = $1`, name).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the SHA-256 of an imported catalog file.
func (s *Store) SetImportedFileHash(ctx context.Context, name, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_imports (name, sha256, imported_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET sha256 = $2, imported_at = $3`,
		name, hash, toMillis(time.Now()),
	)
	return err
}
