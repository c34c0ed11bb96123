package assignment

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"labeling-service/internal/dataset"
	"labeling-service/internal/labels"
	"labeling-service/internal/models"

	"go.uber.org/zap"
)

// ErrPoolExhausted means no bill is eligible for this annotator: every
// bill either reached its two labels or was already labeled by them.
// For the annotator this is completion, not a failure.
var ErrPoolExhausted = errors.New("no bills left to label for this annotator")

// Engine decides which bill an annotator sees next and validates each
// submission against the live label store before committing it. It holds
// no per-annotator state; the pool snapshot it hands out is allowed to go
// stale between selection and submit.
type Engine struct {
	bills  *dataset.Store
	store  labels.Store
	logger *zap.Logger
}

// NewEngine creates an assignment engine over the loaded bills and the
// given label store.
func NewEngine(bills *dataset.Store, store labels.Store, logger *zap.Logger) *Engine {
	return &Engine{
		bills:  bills,
		store:  store,
		logger: logger,
	}
}

// SelectPool returns the bills currently eligible for annotatorID.
//
// Bills with exactly one label from someone else come first ("needs a
// second opinion"); only when none exist does the pool fall back to
// unlabeled bills. Bills at capacity, or already labeled by this
// annotator, are never returned.
func (e *Engine) SelectPool(annotatorID string) ([]*models.Bill, error) {
	all, err := e.store.All()
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}

	counts := make(map[string]int)
	annotators := make(map[string]map[string]bool)
	for _, label := range all {
		counts[label.UniqueNumber]++
		if annotators[label.UniqueNumber] == nil {
			annotators[label.UniqueNumber] = make(map[string]bool)
		}
		annotators[label.UniqueNumber][label.UserID] = true
	}

	var needSecond, needFirst []*models.Bill
	for _, bill := range e.bills.Bills() {
		switch counts[bill.ID] {
		case 0:
			needFirst = append(needFirst, bill)
		case 1:
			if !annotators[bill.ID][annotatorID] {
				needSecond = append(needSecond, bill)
			}
		}
	}

	if len(needSecond) > 0 {
		return needSecond, nil
	}
	return needFirst, nil
}

// PickNext draws one bill uniformly at random from the pool.
func (e *Engine) PickNext(pool []*models.Bill) (*models.Bill, error) {
	if len(pool) == 0 {
		return nil, ErrPoolExhausted
	}
	return pool[rand.Intn(len(pool))], nil
}

// Next selects the pool for an annotator and draws from it.
func (e *Engine) Next(annotatorID string) (*models.Bill, error) {
	pool, err := e.SelectPool(annotatorID)
	if err != nil {
		return nil, err
	}
	return e.PickNext(pool)
}

// Submit validates one judgment against the live store and commits it.
//
// The pre-checks run against current store state, not the pool snapshot
// the bill was drawn from; the store's Insert repeats them inside its own
// write path, so a race between two sessions resolves there. Lost races
// surface as labels.ErrAlreadyAtCapacity or labels.ErrDuplicateAnnotator
// and the caller is expected to re-draw.
func (e *Engine) Submit(billID, annotatorID string, isNuclear bool, certainty int, notes string) (*models.Label, error) {
	bill, ok := e.bills.Get(billID)
	if !ok {
		return nil, fmt.Errorf("unknown bill %s", billID)
	}

	count, err := e.store.CountFor(billID)
	if err != nil {
		return nil, fmt.Errorf("failed to check label count: %w", err)
	}
	if count >= models.TargetLabelsPerBill {
		return nil, labels.ErrAlreadyAtCapacity
	}

	users, err := e.store.AnnotatorsFor(billID)
	if err != nil {
		return nil, fmt.Errorf("failed to check annotators: %w", err)
	}
	for _, user := range users {
		if user == annotatorID {
			return nil, labels.ErrDuplicateAnnotator
		}
	}

	label := &models.Label{
		LegislationDisplay: bill.LegislationDisplay(),
		UserID:             annotatorID,
		Timestamp:          time.Now(),
		IsNuclear:          isNuclear,
		Certainty:          certainty,
		Notes:              notes,
		UniqueNumber:       billID,
	}

	if err := e.store.Insert(label); err != nil {
		return nil, err
	}

	e.logger.Info("Label saved",
		zap.Int64("id", label.ID),
		zap.String("bill", billID),
		zap.String("user", annotatorID),
		zap.Int("round", label.Round))

	return label, nil
}
