package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/exam-paper-app/papergen/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db         *sql.DB
	sessionTTL time.Duration
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, sessionTTL: defaultSessionTTL}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// SetSessionTTL overrides how long newly created auth sessions stay valid.
// Non-positive values are ignored.
func (s *Store) SetSessionTTL(ttl time.Duration) {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// The generations table is an audit trail of generation attempts: settings,
// status, and outcome. Generated exam content is never stored.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		class_name TEXT NOT NULL,
		board TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		total_marks INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		mcq_count INTEGER NOT NULL,
		short_count INTEGER NOT NULL,
		long_count INTEGER NOT NULL,
		image_count INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const generationColumns = `id, topic, class_name, board, student_name, language,
	total_marks, duration_minutes, mcq_count, short_count, long_count,
	image_count, status, error, created_at, completed_at`

// CreateGeneration inserts a new generation audit entry.
func (s *Store) CreateGeneration(rec model.GenerationRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO generations (id, topic, class_name, board, student_name, language,
			total_marks, duration_minutes, mcq_count, short_count, long_count,
			image_count, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Settings.Topic, rec.Settings.ClassName, rec.Settings.Board,
		rec.Settings.StudentName, rec.Settings.Language, rec.Settings.TotalMarks,
		rec.Settings.DurationMinutes, rec.Settings.MCQCount, rec.Settings.ShortCount,
		rec.Settings.LongCount, rec.ImageCount, rec.Status, rec.CreatedAt,
	)
	return err
}

// UpdateGenerationStatus moves a generation to a new pipeline stage.
func (s *Store) UpdateGenerationStatus(id string, status model.GenerationStatus) error {
	_, err := s.db.Exec(`UPDATE generations SET status = ? WHERE id = ?`, status, id)
	return err
}

// FinishGeneration records the terminal status, error text, and completion time.
func (s *Store) FinishGeneration(id string, status model.GenerationStatus, errText string) error {
	_, err := s.db.Exec(
		`UPDATE generations SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, errText, time.Now(), id,
	)
	return err
}

// GetGeneration returns a generation by ID.
func (s *Store) GetGeneration(id string) (model.GenerationRecord, error) {
	row := s.db.QueryRow(`SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	return scanGeneration(row)
}

// ListGenerations returns generations newest first. limit <= 0 means all.
func (s *Store) ListGenerations(limit int) ([]model.GenerationRecord, error) {
	query := `SELECT ` + generationColumns + ` FROM generations ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []model.GenerationRecord
	for rows.Next() {
		rec, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GenerationCount returns the number of generation entries.
func (s *Store) GenerationCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM generations`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (model.GenerationRecord, error) {
	var rec model.GenerationRecord
	err := row.Scan(
		&rec.ID, &rec.Settings.Topic, &rec.Settings.ClassName, &rec.Settings.Board,
		&rec.Settings.StudentName, &rec.Settings.Language, &rec.Settings.TotalMarks,
		&rec.Settings.DurationMinutes, &rec.Settings.MCQCount, &rec.Settings.ShortCount,
		&rec.Settings.LongCount, &rec.ImageCount, &rec.Status, &rec.Error,
		&rec.CreatedAt, &rec.CompletedAt,
	)
	return rec, err
}
