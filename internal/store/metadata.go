package store

import (
	"database/sql"
)

// SetMetadata upserts a key-value pair in the survey_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO survey_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM survey_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the hash recorded for a previously seeded
// fixture file, keyed by file name.
func (s *Store) GetImportedFileHash(name string) (string, error) {
	return s.GetMetadata("seed_hash:" + name)
}

// SetImportedFileHash records the hash of a seeded fixture file so repeat
// seeds can be skipped.
func (s *Store) SetImportedFileHash(name, hash string) error {
	return s.SetMetadata("seed_hash:"+name, hash)
}
