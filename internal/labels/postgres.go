package labels

import (
	"database/sql"
	"errors"
	"fmt"

	"labeling-service/internal/models"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // Required for file source
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// uniqueViolation is the PostgreSQL error code raised by the
// (unique_number, user_id) constraint.
const uniqueViolation = "23505"

// NewPostgresDB establishes a new connection to the PostgreSQL database.
func NewPostgresDB(dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to the database!")
	return db, nil
}

// MigratePostgres runs the file-based database migrations.
func MigratePostgres(db *sqlx.DB, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to get database instance for migrations: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "labeling_app", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migration: %w", err)
	}

	logger.Info("Database migration was run successfully")
	return nil
}

// PostgresStore persists labels in PostgreSQL.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore wraps an already-connected database handle.
func NewPostgresStore(db *sqlx.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// UpsertBill stores one bill row; used by the initdb bulk load.
func (s *PostgresStore) UpsertBill(bill *models.Bill) error {
	query := `
		INSERT INTO bills (unique_number, congress, legislation_number, title, summary_text, summary_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (unique_number) DO UPDATE SET
			congress = EXCLUDED.congress,
			legislation_number = EXCLUDED.legislation_number,
			title = EXCLUDED.title,
			summary_text = EXCLUDED.summary_text,
			summary_hash = EXCLUDED.summary_hash
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

// Insert writes one label. The bills row is locked FOR UPDATE first so
// concurrent submits for the same bill serialize; the count and duplicate
// re-checks then run against committed state.
func (s *PostgresStore) Insert(label *models.Label) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRow("SELECT unique_number FROM bills WHERE unique_number = $1 FOR UPDATE", label.UniqueNumber).Scan(&locked)
	if err == sql.ErrNoRows {
		return fmt.Errorf("unknown bill %s", label.UniqueNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to lock bill row: %w", err)
	}

	var count int
	err = tx.QueryRow("SELECT COUNT(*) FROM labels WHERE unique_number = $1", label.UniqueNumber).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count labels: %w", err)
	}

	if count >= models.TargetLabelsPerBill {
		return ErrAlreadyAtCapacity
	}

	var dup int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM labels WHERE unique_number = $1 AND user_id = $2",
		label.UniqueNumber, label.UserID,
	).Scan(&dup)
	if err != nil {
		return fmt.Errorf("failed to check duplicate annotator: %w", err)
	}

	if dup > 0 {
		return ErrDuplicateAnnotator
	}

	label.Round = count + 1

	err = tx.QueryRow(`
		INSERT INTO labels (
			legislation_display, user_id, timestamp,
			is_nuclear, certainty, notes,
			unique_number, label_round
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		label.LegislationDisplay,
		label.UserID,
		label.Timestamp,
		label.IsNuclear,
		label.Certainty,
		label.Notes,
		label.UniqueNumber,
		label.Round,
	).Scan(&label.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateAnnotator
		}
		return fmt.Errorf("failed to insert label: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit label: %w", err)
	}

	return nil
}

// All retrieves every label, newest first.
func (s *PostgresStore) All() ([]*models.Label, error) {
	var all []*models.Label
	query := `
		SELECT id, legislation_display, user_id, timestamp,
		       is_nuclear, certainty, notes, unique_number, label_round
		FROM labels
		ORDER BY timestamp DESC
	`

	if err := s.db.Select(&all, query); err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}

	return all, nil
}

// CountFor returns how many labels a bill currently holds.
func (s *PostgresStore) CountFor(uniqueNumber string) (int, error) {
	var count int
	err := s.db.Get(&count, "SELECT COUNT(*) FROM labels WHERE unique_number = $1", uniqueNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to count labels: %w", err)
	}
	return count, nil
}

// AnnotatorsFor returns the annotators who already labeled a bill.
func (s *PostgresStore) AnnotatorsFor(uniqueNumber string) ([]string, error) {
	var users []string
	err := s.db.Select(&users, "SELECT user_id FROM labels WHERE unique_number = $1", uniqueNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotators: %w", err)
	}
	return users, nil
}

// Delete removes one label by its surrogate id (admin only).
func (s *PostgresStore) Delete(id int64) error {
	result, err := s.db.Exec("DELETE FROM labels WHERE id = $1", id)
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
func (s *PostgresStore) Stats() (*models.LabelStats, error) {
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

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
