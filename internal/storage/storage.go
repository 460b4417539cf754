// Package storage persists the coding loop's session history: one log file
// per agent session plus an append-only JSONL index of session records.
package storage

import "time"

// SessionRecord summarizes one agent session. Records are appended to the
// sessions index and never rewritten.
type SessionRecord struct {
	// ID is the unique session identifier.
	ID string `json:"session_id"`

	// RunID groups the sessions of one loop invocation.
	RunID string `json:"run_id,omitempty"`

	// Number is the 1-based session number within the run.
	Number int `json:"number"`

	// Mode is initializer, enhancement_init or coding.
	Mode string `json:"mode"`

	// Runner names the backend that invoked the agent (cli, api).
	Runner string `json:"runner,omitempty"`

	// Status is continue or error.
	Status string `json:"status"`

	// Error carries the session error message, if any.
	Error string `json:"error,omitempty"`

	// StartedAt is when the agent was invoked.
	StartedAt time.Time `json:"started_at"`

	// DurationSeconds is the wall-clock duration of the invocation.
	DurationSeconds float64 `json:"duration_seconds"`

	// PassingBefore and PassingAfter bracket the session's progress.
	PassingBefore int `json:"passing_before"`
	PassingAfter  int `json:"passing_after"`
	Total         int `json:"total"`

	// NewlyPassing lists descriptions that started passing this session.
	NewlyPassing []string `json:"newly_passing,omitempty"`

	// RolledBack is set when the auditor rejected the agent's ledger edits.
	RolledBack  bool   `json:"rolled_back,omitempty"`
	AuditReason string `json:"audit_reason,omitempty"`

	// LogPath is the session log file.
	LogPath string `json:"log_path,omitempty"`
}

// SessionLog is the full transcript of one session.
type SessionLog struct {
	Mode      string
	StartedAt time.Time
	Duration  time.Duration
	Prompt    string
	Stdout    string
	Stderr    string
}

// Storage is the interface for persisting session history.
type Storage interface {
	// WriteSessionLog writes a session transcript and returns its path.
	WriteSessionLog(log *SessionLog) (string, error)

	// AppendRecord appends a record to the sessions index.
	AppendRecord(record *SessionRecord) error

	// ListRecords returns all records in the sessions index.
	ListRecords() ([]SessionRecord, error)

	// Init creates the required directory structure.
	Init() error

	// Close releases any resources.
	Close() error
}
