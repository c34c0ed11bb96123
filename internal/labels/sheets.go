package labels

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"labeling-service/internal/models"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// sheetTimeLayout matches the timestamp format the legacy sheet used.
const sheetTimeLayout = "2006-01-02 15:04:05"

var sheetHeader = []interface{}{
	"legislation_display", "user_id", "timestamp", "is_nuclear",
	"certainty", "notes", "unique_number", "label_round",
}

// SheetsStore is the legacy append-only backend: one spreadsheet, one row
// per label, queried by pulling all rows and filtering client side.
//
// The Sheets API offers no transactions, so the capacity and duplicate
// checks re-read the sheet immediately before appending. Appends on a
// single spreadsheet are processed in order, which keeps the window small;
// the relational backends are the ones with a hard guarantee.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *zap.Logger
}

// NewSheetsStore connects to the configured spreadsheet with a service
// account credentials file and writes the header row if the sheet is empty.
func NewSheetsStore(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zap.Logger) (*SheetsStore, error) {
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	store := &SheetsStore{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}

	if err := store.ensureHeader(); err != nil {
		return nil, err
	}

	logger.Info("Sheets label store initialized",
		zap.String("spreadsheet_id", spreadsheetID),
		zap.String("sheet", sheetName))

	return store, nil
}

func (s *SheetsStore) ensureHeader() error {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1:H1").Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet header: %w", err)
	}

	if len(resp.Values) > 0 {
		return nil
	}

	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A1",
		&sheets.ValueRange{Values: [][]interface{}{sheetHeader}}).
		ValueInputOption("RAW").Do()
	if err != nil {
		return fmt.Errorf("failed to write sheet header: %w", err)
	}

	return nil
}

// Insert re-reads the sheet, re-checks both invariants against what it
// finds, then appends one row. Round is the observed count + 1.
func (s *SheetsStore) Insert(label *models.Label) error {
	all, err := s.All()
	if err != nil {
		return err
	}

	count := 0
	for _, existing := range all {
		if existing.UniqueNumber != label.UniqueNumber {
			continue
		}
		if existing.UserID == label.UserID {
			return ErrDuplicateAnnotator
		}
		count++
	}

	if count >= models.TargetLabelsPerBill {
		return ErrAlreadyAtCapacity
	}

	label.Round = count + 1

	row := []interface{}{
		label.LegislationDisplay,
		label.UserID,
		label.Timestamp.Format(sheetTimeLayout),
		boolToInt(label.IsNuclear),
		label.Certainty,
		label.Notes,
		label.UniqueNumber,
		label.Round,
	}

	appendResp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A1",
		&sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").Do()
	if err != nil {
		return fmt.Errorf("failed to append label row: %w", err)
	}

	// Physical row number doubles as the surrogate id; header is row 1.
	// The updated range is authoritative even when the sheet holds rows
	// that All() could not parse.
	if appendResp.Updates != nil {
		if id, err := rowFromRange(appendResp.Updates.UpdatedRange); err == nil {
			label.ID = id
		} else {
			s.logger.Warn("Could not determine appended row number", zap.Error(err))
		}
	}

	return nil
}

// rowFromRange extracts the row number from an A1-notation range such as
// "Sheet1!A7:H7" or "'RA labels'!A7".
func rowFromRange(updatedRange string) (int64, error) {
	ref := updatedRange
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		ref = ref[i+1:]
	}
	if i := strings.Index(ref, ":"); i >= 0 {
		ref = ref[:i]
	}

	digits := strings.TrimLeft(ref, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	if digits == "" {
		return 0, fmt.Errorf("no row number in range %q", updatedRange)
	}

	return strconv.ParseInt(digits, 10, 64)
}

// All pulls every data row from the sheet.
func (s *SheetsStore) All() ([]*models.Label, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A2:H").Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet rows: %w", err)
	}

	var all []*models.Label
	for i, row := range resp.Values {
		label, err := parseSheetRow(int64(i+2), row)
		if err != nil {
			s.logger.Warn("Skipping malformed sheet row", zap.Int("row", i+2), zap.Error(err))
			continue
		}
		all = append(all, label)
	}

	return all, nil
}

// CountFor returns how many labels a bill currently holds.
func (s *SheetsStore) CountFor(uniqueNumber string) (int, error) {
	all, err := s.All()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, label := range all {
		if label.UniqueNumber == uniqueNumber {
			count++
		}
	}

	return count, nil
}

// AnnotatorsFor returns the annotators who already labeled a bill.
func (s *SheetsStore) AnnotatorsFor(uniqueNumber string) ([]string, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}

	var users []string
	for _, label := range all {
		if label.UniqueNumber == uniqueNumber {
			users = append(users, label.UserID)
		}
	}

	return users, nil
}

// Delete removes one row by its row-number surrogate id.
func (s *SheetsStore) Delete(id int64) error {
	if id < 2 {
		return ErrLabelNotFound
	}

	sheetID, err := s.sheetID()
	if err != nil {
		return err
	}

	all, err := s.All()
	if err != nil {
		return err
	}

	if id > int64(len(all)+1) {
		return ErrLabelNotFound
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: id - 1,
					EndIndex:   id,
				},
			},
		}},
	}

	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Do(); err != nil {
		return fmt.Errorf("failed to delete sheet row: %w", err)
	}

	return nil
}

// Stats returns the admin dashboard aggregates.
func (s *SheetsStore) Stats() (*models.LabelStats, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	return statsFromLabels(all), nil
}

// Close is a no-op; the sheets client holds no persistent connection.
func (s *SheetsStore) Close() error {
	return nil
}

func (s *SheetsStore) sheetID() (int64, error) {
	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet metadata: %w", err)
	}

	for _, sheet := range meta.Sheets {
		if sheet.Properties.Title == s.sheetName {
			return sheet.Properties.SheetId, nil
		}
	}

	return 0, fmt.Errorf("sheet %s not found in spreadsheet", s.sheetName)
}

func parseSheetRow(id int64, row []interface{}) (*models.Label, error) {
	if len(row) < 8 {
		return nil, fmt.Errorf("expected 8 cells, got %d", len(row))
	}

	cell := func(i int) string {
		return fmt.Sprintf("%v", row[i])
	}

	ts, err := time.Parse(sheetTimeLayout, cell(2))
	if err != nil {
		ts = time.Time{}
	}

	certainty, err := strconv.Atoi(cell(4))
	if err != nil {
		return nil, fmt.Errorf("bad certainty %q", cell(4))
	}

	round, err := strconv.Atoi(cell(7))
	if err != nil {
		return nil, fmt.Errorf("bad label_round %q", cell(7))
	}

	return &models.Label{
		ID:                 id,
		LegislationDisplay: cell(0),
		UserID:             cell(1),
		Timestamp:          ts,
		IsNuclear:          cell(3) == "1",
		Certainty:          certainty,
		Notes:              cell(5),
		UniqueNumber:       cell(6),
		Round:              round,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
