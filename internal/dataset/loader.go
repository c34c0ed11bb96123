package dataset

import (
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"labeling-service/internal/models"

	"go.uber.org/zap"
)

// Key modes for bill identity.
const (
	KeyModeNatural = "natural" // dataset's unique_number column
	KeyModeHash    = "hash"    // md5 of the normalized summary text
)

// replacements is the fixed mojibake repair table applied to free-text
// columns. The garbled sequences are what the legacy export produced.
// The bare right-quote sequence is a prefix of the dash and ellipsis
// sequences, so the longer ones must run first.
var replacements = [][2]string{
	{"¬¨‚Ä†", " "},
	{"â€™", "'"},
	{"â€œ", `"`},
	{"â€“", "-"},
	{"â€”", "-"},
	{"â€¦", "..."},
	{"â€", `"`},
	{"Â ", " "},
}

// Store is the read-only set of labelable bills, loaded once per process.
type Store struct {
	bills []*models.Bill
	byID  map[string]*models.Bill
}

// Bills returns all bills in load order.
func (s *Store) Bills() []*models.Bill {
	return s.bills
}

// Get looks a bill up by its item key.
func (s *Store) Get(id string) (*models.Bill, bool) {
	b, ok := s.byID[id]
	return b, ok
}

// Len reports the number of labelable bills.
func (s *Store) Len() int {
	return len(s.bills)
}

// Loader reads the bill-summaries CSV and builds the bill store.
type Loader struct {
	path    string
	url     string
	keyMode string
	logger  *zap.Logger
}

// NewLoader creates a loader for the given CSV path. If the file does not
// exist and url is non-empty, the file is downloaded there first.
func NewLoader(path, url, keyMode string, logger *zap.Logger) *Loader {
	return &Loader{
		path:    path,
		url:     url,
		keyMode: keyMode,
		logger:  logger,
	}
}

// Load fetches (if needed) and parses the dataset, returning the bill store.
func (l *Loader) Load() (*Store, error) {
	if err := l.ensureLocal(); err != nil {
		return nil, err
	}

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	store, err := Parse(file, l.keyMode)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Dataset loaded",
		zap.String("path", l.path),
		zap.String("key_mode", l.keyMode),
		zap.Int("bills", store.Len()))

	return store, nil
}

// ensureLocal downloads the dataset once if the local copy is missing.
func (l *Loader) ensureLocal() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	}

	if l.url == "" {
		return fmt.Errorf("dataset file %s not found and no download URL configured", l.path)
	}

	l.logger.Info("Downloading dataset", zap.String("url", l.url))

	resp, err := http.Get(l.url)
	if err != nil {
		return fmt.Errorf("failed to download dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download dataset: unexpected status %s", resp.Status)
	}

	out, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write dataset file: %w", err)
	}

	return nil
}

// Parse reads CSV rows and normalizes them into bills. Rows with no usable
// summary text are dropped; in hash mode rows with identical normalized
// text collapse to a single bill.
func Parse(r io.Reader, keyMode string) (*Store, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.ToValidUTF8(record[idx], "")
	}

	store := &Store{byID: make(map[string]*models.Bill)}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset row: %w", err)
		}

		summary := RepairText(field(record, "Summary"))
		formats := RepairText(field(record, "formats"))
		text := NormalizeSummary(summary, formats)
		if text == "" {
			continue
		}

		hash := SummaryHash(text)

		bill := &models.Bill{
			Congress:          strings.TrimSpace(field(record, "congress")),
			LegislationNumber: strings.TrimSpace(field(record, "legislation_number")),
			Title:             RepairText(field(record, "title")),
			SummaryText:       text,
			SummaryHash:       hash,
		}

		switch keyMode {
		case KeyModeHash:
			bill.ID = hash
		default:
			bill.ID = strings.TrimSpace(field(record, "unique_number"))
			if bill.ID == "" {
				continue
			}
		}

		if _, seen := store.byID[bill.ID]; seen {
			continue
		}

		store.byID[bill.ID] = bill
		store.bills = append(store.bills, bill)
	}

	return store, nil
}

// RepairText applies the fixed mojibake replacement table.
func RepairText(s string) string {
	for _, r := range replacements {
		s = strings.ReplaceAll(s, r[0], r[1])
	}
	return s
}

// NormalizeSummary trims the primary summary text, falling back to the
// formats column when the summary is blank.
func NormalizeSummary(summary, formats string) string {
	text := strings.TrimSpace(summary)
	if text == "" {
		text = strings.TrimSpace(formats)
	}
	return text
}

// SummaryHash returns the md5 hex digest of normalized summary text.
func SummaryHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
