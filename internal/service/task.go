package service

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeMerge      = "merge:run"
	TaskTypeValidation = "validate:run"
)

// newJobTask wraps a job payload in the envelope the workers expect.
func newJobTask(taskType, jobID string, payload interface{}) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payloadBytes),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
