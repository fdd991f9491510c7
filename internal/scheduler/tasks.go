package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSyncRun = "sync.run"

const TaskRecalculateAll = "leads.recalculate_all"

type SyncRunPayload struct {
	Platform  string `json:"platform"`
	Direction string `json:"direction"`
}

type RecalculateAllPayload struct {
	Reason string `json:"reason,omitempty"`
}

func NewSyncRunTask(payload SyncRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncRun, data), nil
}

func ParseSyncRunPayload(task *asynq.Task) (SyncRunPayload, error) {
	var payload SyncRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SyncRunPayload{}, err
	}
	return payload, nil
}

func NewRecalculateAllTask(payload RecalculateAllPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecalculateAll, data), nil
}

func ParseRecalculateAllPayload(task *asynq.Task) (RecalculateAllPayload, error) {
	var payload RecalculateAllPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RecalculateAllPayload{}, err
	}
	return payload, nil
}
