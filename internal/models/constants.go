package models

import "time"

const (
	// DefaultQueueKey is the storage key of the default offline queue.
	DefaultQueueKey = "nordagri:offline_queue"

	// DeadLetterSuffix is appended to a queue key to form its dead-letter key.
	DeadLetterSuffix = ":deadletter"

	// CorruptSuffix is appended to a queue key to keep undecodable content.
	CorruptSuffix = ":corrupt"

	// DefaultProbeInterval is how often connectivity is checked.
	DefaultProbeInterval = 15 * time.Second

	// DefaultBackendTimeout bounds a single remote insert.
	DefaultBackendTimeout = 10 * time.Second
)

const (
	PermReadQueue  = "read:queue"
	PermWriteQueue = "write:queue"
	PermAdminQueue = "admin:queue"
)
