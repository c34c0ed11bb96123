package labels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowFromRange(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int64
		shouldError bool
	}{
		{name: "full range", input: "Sheet1!A7:H7", expected: 7},
		{name: "single cell", input: "Sheet1!A2", expected: 2},
		{name: "quoted sheet name", input: "'RA labels'!A15:H15", expected: 15},
		{name: "no sheet prefix", input: "A42:H42", expected: 42},
		{name: "no row number", input: "Sheet1!A:H", shouldError: true},
		{name: "empty", input: "", shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := rowFromRange(tt.input)
			if tt.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, row)
		})
	}
}

func TestParseSheetRow(t *testing.T) {
	row := []interface{}{
		"118th Congress, H.R. 1", "alice", "2026-08-30 10:15:00",
		"1", "4", "triad", "101", "2",
	}

	label, err := parseSheetRow(5, row)
	require.NoError(t, err)

	assert.Equal(t, int64(5), label.ID)
	assert.Equal(t, "alice", label.UserID)
	assert.True(t, label.IsNuclear)
	assert.Equal(t, 4, label.Certainty)
	assert.Equal(t, "101", label.UniqueNumber)
	assert.Equal(t, 2, label.Round)
	assert.Equal(t, time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC), label.Timestamp)
}

func TestParseSheetRowMalformed(t *testing.T) {
	_, err := parseSheetRow(3, []interface{}{"too", "short"})
	assert.Error(t, err)

	_, err = parseSheetRow(3, []interface{}{
		"d", "alice", "2026-08-30 10:15:00", "1", "not-a-number", "", "101", "1",
	})
	assert.Error(t, err)
}
