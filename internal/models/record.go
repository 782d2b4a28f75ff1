package models

import (
	"time"
	"unicode/utf8"
)

// Direction of a message as exported by SMS Backup & Restore
type Direction string

const (
	DirectionReceived Direction = "Received"
	DirectionSent     Direction = "Sent"
	DirectionDraft    Direction = "Draft"
	DirectionOutbox   Direction = "Outbox"
	DirectionFailed   Direction = "Failed"
	DirectionQueued   Direction = "Queued"
	DirectionUnknown  Direction = "Unknown"
)

// MsgType distinguishes SMS from MMS records
type MsgType string

const (
	MsgTypeSMS MsgType = "SMS"
	MsgTypeMMS MsgType = "MMS"
)

// CallType of a call-log entry
type CallType string

const (
	CallIncoming           CallType = "Incoming"
	CallOutgoing           CallType = "Outgoing"
	CallMissed             CallType = "Missed"
	CallVoicemail          CallType = "Voicemail"
	CallRejected           CallType = "Rejected"
	CallBlocked            CallType = "Blocked"
	CallAnsweredExternally CallType = "Answered Externally"
	CallUnknown            CallType = "Unknown"
)

// UnknownPhone is the aggregation key for records without a phone number
const UnknownPhone = "UNKNOWN"

// DateLayout is the human readable form stored in date_str columns
const DateLayout = "2006-01-02 15:04:05"

// MessageRecord is one parsed SMS or MMS. Treat as immutable once parsed.
type MessageRecord struct {
	ID          int64     `json:"id,omitempty" db:"id"`
	TimestampMs int64     `json:"timestamp_ms" db:"timestamp_ms"`
	DateStr     string    `json:"date_str" db:"date_str"`
	Direction   Direction `json:"direction" db:"direction"`
	ContactName string    `json:"contact_name" db:"contact_name"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	MsgType     MsgType   `json:"msg_type" db:"msg_type"`
	Body        string    `json:"body" db:"body"`
	Read        bool      `json:"read" db:"read"`
	SourceFile  string    `json:"source_file" db:"source_file"`
}

// CallRecord is one call-log entry
type CallRecord struct {
	ID          int64    `json:"id,omitempty" db:"id"`
	TimestampMs int64    `json:"timestamp_ms" db:"timestamp_ms"`
	DateStr     string   `json:"date_str" db:"date_str"`
	CallType    CallType `json:"call_type" db:"call_type"`
	ContactName string   `json:"contact_name" db:"contact_name"`
	PhoneNumber string   `json:"phone_number" db:"phone_number"`
	DurationSec int      `json:"duration_sec" db:"duration_sec"`
	DurationFmt string   `json:"duration_fmt" db:"duration_fmt"`
	SourceFile  string   `json:"source_file" db:"source_file"`
}

// PhoneKey returns the aggregation key for a phone number
func PhoneKey(phone string) string {
	if phone == "" {
		return UnknownPhone
	}
	return phone
}

// FormatTimestamp renders epoch millis in local time
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format(DateLayout)
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
