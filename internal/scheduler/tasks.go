package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskUserRecordDelete removes a users record whose identity is already gone.
const TaskUserRecordDelete = "records.user.delete"

type UserRecordDeletePayload struct {
	UserID string `json:"userId"`
}

func NewUserRecordDeleteTask(payload UserRecordDeletePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUserRecordDelete, data), nil
}

func ParseUserRecordDeletePayload(task *asynq.Task) (UserRecordDeletePayload, error) {
	var payload UserRecordDeletePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return UserRecordDeletePayload{}, err
	}
	return payload, nil
}
