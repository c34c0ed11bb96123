package labels

import (
	"errors"

	"labeling-service/internal/models"
)

var (
	// ErrAlreadyAtCapacity means the bill already holds its two labels.
	ErrAlreadyAtCapacity = errors.New("bill already has the maximum number of labels")
	// ErrDuplicateAnnotator means this annotator already labeled the bill.
	ErrDuplicateAnnotator = errors.New("annotator already labeled this bill")
	// ErrLabelNotFound is returned by Delete for an unknown label id.
	ErrLabelNotFound = errors.New("label not found")
)

// Store is the narrow boundary the assignment engine works against. All
// three backends (SQLite, PostgreSQL, Google Sheets) implement it.
//
// Insert must be atomic per submission and must itself enforce the two
// invariants — at most models.TargetLabelsPerBill labels per bill, at most
// one label per (bill, annotator) — even when concurrent sessions race past
// their pre-checks. The losing writer gets ErrAlreadyAtCapacity or
// ErrDuplicateAnnotator. On success Insert fills in the label's ID and
// Round (count of existing labels + 1, computed inside the write).
type Store interface {
	Insert(label *models.Label) error
	All() ([]*models.Label, error)
	CountFor(uniqueNumber string) (int, error)
	AnnotatorsFor(uniqueNumber string) ([]string, error)
	Delete(id int64) error
	Stats() (*models.LabelStats, error)
	Close() error
}

// statsFromLabels builds the admin projection from a full label pull.
// Used by backends without server-side aggregation.
func statsFromLabels(all []*models.Label) *models.LabelStats {
	stats := &models.LabelStats{ByUser: make(map[string]int)}
	for _, l := range all {
		stats.Total++
		switch l.Round {
		case 1:
			stats.Round1++
		case 2:
			stats.Round2++
		}
		stats.ByUser[l.UserID]++
	}
	return stats
}
