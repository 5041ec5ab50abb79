package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan walks every domain looking for invariant drift.
	TaskIntegrityScan = "authz:integrity_scan"
)

// IntegrityScanPayload configures one integrity scan run.
type IntegrityScanPayload struct {
	// SelfHeal removes surplus role assignments when a user holds more than
	// one role in a domain, keeping the highest-ranked one. Ownerless
	// domains are only reported; the scan never invents an owner.
	SelfHeal bool `json:"self_heal"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, data), nil
}
