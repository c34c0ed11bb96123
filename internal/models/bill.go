package models

import (
	"fmt"
	"strconv"
)

// Bill represents one labelable bill summary from the source dataset.
// ID is the stable item key: the dataset's unique_number in natural-key
// mode, or the md5 digest of the normalized summary text in hash mode.
type Bill struct {
	ID                string `json:"id" db:"unique_number"`
	Congress          string `json:"congress" db:"congress"`
	LegislationNumber string `json:"legislation_number" db:"legislation_number"`
	Title             string `json:"title" db:"title"`
	SummaryText       string `json:"summary_text" db:"summary_text"`
	SummaryHash       string `json:"summary_hash" db:"summary_hash"`
}

// LegislationDisplay renders the "118th Congress, H.R. 1234" line shown
// above the summary and stored alongside each label.
func (b *Bill) LegislationDisplay() string {
	congress := FormatCongress(b.Congress)
	number := b.LegislationNumber
	if number == "" {
		number = "[Bill # Missing]"
	}
	return fmt.Sprintf("%s, %s", congress, number)
}

// FormatCongress turns a raw congress number into its ordinal form
// ("118" -> "118th Congress"). Non-numeric input is passed through as-is.
func FormatCongress(raw string) string {
	if raw == "" {
		return "[Congress # Missing]"
	}

	num, err := strconv.Atoi(raw)
	if err != nil {
		return raw
	}

	suffix := "th"
	if rem := num % 100; rem < 11 || rem > 13 {
		switch num % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}

	return fmt.Sprintf("%d%s Congress", num, suffix)
}
