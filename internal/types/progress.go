package types

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a ProgressEntry.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"

	// StatusListed marks a listing page that was expanded for its links but
	// is not a work item itself.
	StatusListed Status = "listed"
)

// Terminal reports whether the status will never be retried in a future run.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusSkipped
}

// ProgressEntry is the persisted outcome for one identifier.
type ProgressEntry struct {
	ID        string    `json:"identifier" bson:"_id" db:"identifier"`
	Order     int       `json:"order" bson:"order" db:"ord"`
	Status    Status    `json:"status" bson:"status" db:"status"`
	Record    *Record   `json:"record" bson:"-" db:"-"`
	Attempts  int       `json:"attempts" bson:"attempts" db:"attempts"`
	LastError string    `json:"last_error" bson:"last_error,omitempty" db:"last_error"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`

	// Expanded is set once the identifier's links were collected; Children
	// holds them so a later run can expand without fetching again.
	Expanded bool     `json:"expanded,omitempty" bson:"expanded,omitempty" db:"expanded"`
	Children []string `json:"children,omitempty" bson:"children,omitempty" db:"-"`
}

// MarshalJSON writes an empty LastError as null.
func (e ProgressEntry) MarshalJSON() ([]byte, error) {
	type plain ProgressEntry
	var lastErr *string
	if e.LastError != "" {
		lastErr = &e.LastError
	}
	return MarshalJSON(struct {
		plain
		LastError *string `json:"last_error"`
	}{plain(e), lastErr})
}

// UnmarshalJSON accepts last_error as a string or null.
func (e *ProgressEntry) UnmarshalJSON(data []byte) error {
	type plain ProgressEntry
	var v struct {
		plain
		LastError *string `json:"last_error"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = ProgressEntry(v.plain)
	if v.LastError != nil {
		e.LastError = *v.LastError
	}
	return nil
}

// Failed reports a Done entry that ended in an error.
func (e ProgressEntry) Failed() bool {
	return e.Status == StatusDone && e.LastError != ""
}

// Relevant reports a Done entry whose record passed every gate.
func (e ProgressEntry) Relevant() bool {
	return e.Status == StatusDone && e.LastError == "" && e.Record != nil && e.Record.Relevant
}
