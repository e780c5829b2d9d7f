package notifier

import "time"

// Config controls the delivery pool.
type Config struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	HistorySize int
}

type HistoryItem struct {
	At    time.Time     `json:"at"`
	Job   string        `json:"job"`
	Took  time.Duration `json:"took"`
	Error string        `json:"error,omitempty"`
}

// JobEvent is published on the event bus for pool lifecycle events.
type JobEvent struct {
	Job   string    `json:"job"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Workers   int    `json:"workers"`
	Completed uint64 `json:"completed"`
	Dropped   uint64 `json:"dropped"`
	Panics    uint64 `json:"panics"`
}
