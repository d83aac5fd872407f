package store

import (
	"database/sql"

	"github.com/exam-paper-app/papergen/internal/model"
)

// SetMetadata upserts a key-value pair in the app_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO app_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetEngineInfo stores the configured generation backend as metadata rows.
func (s *Store) SetEngineInfo(info model.EngineInfo) error {
	if err := s.SetMetadata("engine", info.Engine); err != nil {
		return err
	}
	return s.SetMetadata("model", info.Model)
}

// GetEngineInfo reads the generation backend from metadata.
func (s *Store) GetEngineInfo() (model.EngineInfo, error) {
	var info model.EngineInfo
	var err error
	if info.Engine, err = s.GetMetadata("engine"); err != nil {
		return info, err
	}
	info.Model, err = s.GetMetadata("model")
	return info, err
}
