package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTotalsSweep is the task type for the stored-totals integrity sweep.
	TaskTotalsSweep = "reconcile:totals_sweep"
)

// TotalsSweepPayload scopes a sweep run. A zero QuotationID means walk every
// quotation in batches of BatchSize.
type TotalsSweepPayload struct {
	QuotationID int64 `json:"quotation_id,omitempty"`
	BatchSize   int   `json:"batch_size,omitempty"`
}

// NewTotalsSweepTask constructs an Asynq task for the integrity sweep.
func NewTotalsSweepTask(payload TotalsSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTotalsSweep, data), nil
}
