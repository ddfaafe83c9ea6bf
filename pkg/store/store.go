// pkg/store/store.go
package store

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound      = errors.New("call not found")
	ErrAlreadyExists = errors.New("call already exists")
	ErrInvalidID     = errors.New("invalid call id")
)

// Call lifecycle statuses.
const (
	StatusCalling  = "calling"
	StatusRinging  = "ringing"
	StatusAnswered = "answered"
)

// CallSession tracks one outbound signaling attempt. A session exists in the
// store only between INVITE submission and its terminal outcome: progress and
// answer keep it, rejection removes it immediately.
type CallSession struct {
	ID            string    `json:"id"`
	To            string    `json:"to"`
	From          string    `json:"from"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	Payload       string    `json:"payload"`
	PayloadIsText bool      `json:"payload_is_text"`
	Voice         string    `json:"voice,omitempty"`
	TransferTo    string    `json:"transfer_to,omitempty"`
	TransferDigit string    `json:"transfer_digit,omitempty"`
}

// Stats summarizes store activity.
type Stats struct {
	Active   int `json:"active"`
	Inserted int `json:"inserted"`
	Removed  int `json:"removed"`
}

// CallStore is the in-memory call session table. Implementations guarantee
// atomic per-key operations; no cross-entry locking is required by callers.
type CallStore interface {
	Insert(session *CallSession) error
	UpdateStatus(id, status string) error
	Get(id string) (*CallSession, error)
	Delete(id string) error
	All() []*CallSession
	Stats() Stats
}
