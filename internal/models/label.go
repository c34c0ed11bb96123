package models

import "time"

// TargetLabelsPerBill is the redundancy target: every bill should end up
// with exactly two independent judgments.
const TargetLabelsPerBill = 2

// CertaintyLabels maps the 1-5 certainty scale to its display wording.
var CertaintyLabels = map[int]string{
	1: "Very Uncertain",
	2: "Somewhat Uncertain",
	3: "Moderately Certain",
	4: "Certain",
	5: "Highly Certain",
}

// Label is one annotator's judgment on one bill. Rows are append-only;
// the only mutation ever applied is an admin delete by id.
type Label struct {
	ID                 int64     `json:"id" db:"id"`
	LegislationDisplay string    `json:"legislation_display" db:"legislation_display"`
	UserID             string    `json:"user_id" db:"user_id"`
	Timestamp          time.Time `json:"timestamp" db:"timestamp"`
	IsNuclear          bool      `json:"is_nuclear" db:"is_nuclear"`
	Certainty          int       `json:"certainty" db:"certainty"`
	Notes              string    `json:"notes" db:"notes"`
	UniqueNumber       string    `json:"unique_number" db:"unique_number"`
	Round              int       `json:"label_round" db:"label_round"`
}

// LabelStats is the admin dashboard projection over all labels.
type LabelStats struct {
	Total  int            `json:"total"`
	Round1 int            `json:"round_1"`
	Round2 int            `json:"round_2"`
	ByUser map[string]int `json:"by_user"`
}

// LoginRequest carries the shared passphrase for the credential gate.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// StartSessionRequest opens an annotator session. UserID is the RA name
// typed by the human; a blank one never reaches the assignment engine.
type StartSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// SubmitRequest carries one judgment for the session's current bill.
type SubmitRequest struct {
	IsNuclear *bool  `json:"is_nuclear" binding:"required"`
	Certainty int    `json:"certainty" binding:"required,min=1,max=5"`
	Notes     string `json:"notes"`
}
