package domain

import "time"

// TaskStatus is the device-side state of an import task.
type TaskStatus string

const (
	// TaskStarted means the device accepted the task and is still working.
	TaskStarted TaskStatus = "STARTED"
	// TaskCompleted means the import finished successfully.
	TaskCompleted TaskStatus = "COMPLETED"
	// TaskFailure means the device rejected or aborted the import.
	TaskFailure TaskStatus = "FAILURE"
)

// Terminal reports whether the status ends the task lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailure
}

// ImportTask is the device-side job tracking a policy import. Tasks are
// created by the device on submission and only ever observed by the client.
type ImportTask struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
}
