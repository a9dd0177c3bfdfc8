package models

import (
	"encoding/json"
	"time"
)

// OperationKind identifies the remote write a queued operation replays into.
type OperationKind string

const (
	KindTimeSession OperationKind = "time_session"
	KindFuelLog     OperationKind = "fuel_log"
)

// OperationKinds lists every kind the dispatcher must handle.
func OperationKinds() []OperationKind {
	return []OperationKind{KindTimeSession, KindFuelLog}
}

// IsKnown reports whether k is part of the closed set of kinds.
func (k OperationKind) IsKnown() bool {
	for _, known := range OperationKinds() {
		if k == known {
			return true
		}
	}
	return false
}

func (k OperationKind) String() string {
	return string(k)
}

// QueuedOperation is a persisted write that the remote system has not confirmed yet.
type QueuedOperation struct {
	ID         string          `json:"id,omitempty"`
	Kind       OperationKind   `json:"type"`
	Payload    json.RawMessage `json:"data"`
	RetryCount int             `json:"retryCount,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt,omitzero"`
	LastError  string          `json:"lastError,omitempty"`
}

// DeadLetter holds an operation that will not be replayed automatically anymore.
type DeadLetter struct {
	ID        string          `json:"id"`
	Operation QueuedOperation `json:"operation"`
	Reason    string          `json:"reason"`
	FailedAt  time.Time       `json:"failedAt"`
}
