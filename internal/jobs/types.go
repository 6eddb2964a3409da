package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskSessionSweep = "session:sweep"

	QueueMaintenance = "maintenance"
)

// SessionSweepPayload is the body of a session:sweep task.
type SessionSweepPayload struct {
	// Prefix limits the sweep to one key namespace, e.g. "visitor".
	Prefix string `json:"prefix,omitempty"`
}

// NewSessionSweepTask builds a sweep task bound for the maintenance queue.
// Sweeps are cheap and periodic, so a failed one is not retried for long.
func NewSessionSweepTask(p SessionSweepPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, b,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Minute),
	), nil
}
