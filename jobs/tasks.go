package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrityScan is the task type for the scheduled ledger
	// invariant scan.
	TaskLedgerIntegrityScan = "inventory:ledger_integrity_scan"
)

// LedgerIntegrityPayload bounds one integrity scan run.
type LedgerIntegrityPayload struct {
	Limit int `json:"limit"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity scan.
func NewLedgerIntegrityTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, data), nil
}
