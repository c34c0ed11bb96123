package labels

import (
	"database/sql"
	"fmt"
	"strings"

	"labeling-service/internal/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists labels in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and migrates) the label database at dbPath.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Concurrent submits from separate sessions hit one writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Label store initialized", zap.String("db_path", dbPath))

	return store, nil
}

// migrate creates tables
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bills (
		unique_number TEXT PRIMARY KEY,
		congress TEXT,
		legislation_number TEXT,
		title TEXT,
		summary_text TEXT NOT NULL,
		summary_hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS labels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		legislation_display TEXT,
		user_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		is_nuclear BOOLEAN NOT NULL,
		certainty INTEGER NOT NULL,
		notes TEXT,
		unique_number TEXT NOT NULL REFERENCES bills(unique_number) ON DELETE CASCADE,
		label_round INTEGER NOT NULL,
		UNIQUE (unique_number, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_labels_unique_number ON labels(unique_number);
	CREATE INDEX IF NOT EXISTS idx_labels_user_id ON labels(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertBill stores one bill row; used by the initdb bulk load.
func (s *SQLiteStore) UpsertBill(bill *models.Bill) error {
	query := `
		INSERT INTO bills (unique_number, congress, legislation_number, title, summary_text, summary_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (unique_number) DO UPDATE SET
			congress = excluded.congress,
			legislation_number = excluded.legislation_number,
			title = excluded.title,
			summary_text = excluded.summary_text,
			summary_hash = excluded.summary_hash
	`

	_, err := s.db.Exec(query,
		bill.ID,
		bill.Congress,
		bill.LegislationNumber,
		bill.Title,
		bill.SummaryText,
		bill.SummaryHash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bill: %w", err)
	}

	return nil
}

// Insert writes one label. The capacity and duplicate checks run inside
// the insert transaction so racing sessions cannot both get through; the
// (unique_number, user_id) constraint backstops the duplicate check.
func (s *SQLiteStore) Insert(label *models.Label) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow("SELECT COUNT(*) FROM labels WHERE unique_number = ?", label.UniqueNumber).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count labels: %w", err)
	}

	if count >= models.TargetLabelsPerBill {
		return ErrAlreadyAtCapacity
	}

	var dup int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM labels WHERE unique_number = ? AND user_id = ?",
		label.UniqueNumber, label.UserID,
	).Scan(&dup)
	if err != nil {
		return fmt.Errorf("failed to check duplicate annotator: %w", err)
	}

	if dup > 0 {
		return ErrDuplicateAnnotator
	}

	label.Round = count + 1

	result, err := tx.Exec(`
		INSERT INTO labels (
			legislation_display, user_id, timestamp,
			is_nuclear, certainty, notes,
			unique_number, label_round
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		label.LegislationDisplay,
		label.UserID,
		label.Timestamp,
		label.IsNuclear,
		label.Certainty,
		label.Notes,
		label.UniqueNumber,
		label.Round,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateAnnotator
		}
		return fmt.Errorf("failed to insert label: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit label: %w", err)
	}

	label.ID = id
	return nil
}

// All retrieves every label, newest first.
func (s *SQLiteStore) All() ([]*models.Label, error) {
	query := `
		SELECT id, legislation_display, user_id, timestamp,
		       is_nuclear, certainty, notes, unique_number, label_round
		FROM labels
		ORDER BY timestamp DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	var all []*models.Label
	for rows.Next() {
		label := &models.Label{}
		err := rows.Scan(
			&label.ID,
			&label.LegislationDisplay,
			&label.UserID,
			&label.Timestamp,
			&label.IsNuclear,
			&label.Certainty,
			&label.Notes,
			&label.UniqueNumber,
			&label.Round,
		)
		if err != nil {
			s.logger.Error("Failed to scan label", zap.Error(err))
			continue
		}
		all = append(all, label)
	}

	return all, rows.Err()
}

// CountFor returns how many labels a bill currently holds.
func (s *SQLiteStore) CountFor(uniqueNumber string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM labels WHERE unique_number = ?", uniqueNumber).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count labels: %w", err)
	}
	return count, nil
}

// AnnotatorsFor returns the annotators who already labeled a bill.
func (s *SQLiteStore) AnnotatorsFor(uniqueNumber string) ([]string, error) {
	rows, err := s.db.Query("SELECT user_id FROM labels WHERE unique_number = ?", uniqueNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotators: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, fmt.Errorf("failed to scan annotator: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Delete removes one label by its surrogate id (admin only).
func (s *SQLiteStore) Delete(id int64) error {
	result, err := s.db.Exec("DELETE FROM labels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return ErrLabelNotFound
	}

	return nil
}

// Stats returns the admin dashboard aggregates.
func (s *SQLiteStore) Stats() (*models.LabelStats, error) {
	stats := &models.LabelStats{ByUser: make(map[string]int)}

	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN label_round = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN label_round = 2 THEN 1 ELSE 0 END), 0)
		FROM labels
	`).Scan(&stats.Total, &stats.Round1, &stats.Round2)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate labels: %w", err)
	}

	rows, err := s.db.Query("SELECT user_id, COUNT(*) FROM labels GROUP BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by user: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user string
		var count int
		if err := rows.Scan(&user, &count); err != nil {
			continue
		}
		stats.ByUser[user] = count
	}

	return stats, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
