package domain

import "time"

// TaskKind distinguishes what a delivery task sends.
type TaskKind string

const (
	TaskSignal  TaskKind = "signal"  // Initial signal delivery to a subscriber
	TaskStatus  TaskKind = "status"  // Status update to an existing receipt holder
	TaskChannel TaskKind = "channel" // Broadcast to a tier's shared channel
)

// TaskState is the dispatch state of a delivery task.
type TaskState string

const (
	TaskPending  TaskState = "pending"
	TaskInFlight TaskState = "in_flight"
	TaskSent     TaskState = "sent"
	TaskFailed   TaskState = "failed"
	TaskSkipped  TaskState = "skipped"
)

// DeliveryTask is a durable, due-at scheduled send.
type DeliveryTask struct {
	ID           int64
	SignalID     int64
	SubscriberID int64 // Zero for channel broadcasts
	Destination  string
	Tier         string
	Kind         TaskKind
	StatusTag    string // Signal status the task announces; "" for the initial send
	DueAt        time.Time
	State        TaskState
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
