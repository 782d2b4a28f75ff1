package models

import "time"

// Job statuses
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Job tracks an asynchronous scan
type Job struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	XMLDir           string     `json:"xml_dir"`
	MessagesParsed   int        `json:"messages_parsed"`
	CallsParsed      int        `json:"calls_parsed"`
	IntentsFlagged   int        `json:"intents_flagged"`
	ContactsProfiled int        `json:"contacts_profiled"`
	Progress         int        `json:"progress"`
	Total            int        `json:"total"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// RunMeta is one row of run metadata
type RunMeta struct {
	ID            int64  `json:"id" db:"id"`
	RunAt         string `json:"run_at" db:"run_at"`
	RunLabel      string `json:"run_label" db:"run_label"`
	SchemaVersion string `json:"schema_version" db:"schema_version"`
	MessageCount  int    `json:"message_count" db:"message_count"`
	CallCount     int    `json:"call_count" db:"call_count"`
	IntentCount   int    `json:"intent_count" db:"intent_count"`
	Notes         string `json:"notes,omitempty" db:"notes"`
}
