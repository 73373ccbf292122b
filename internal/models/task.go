package models

import "time"

// TaskKind identifies the operation that created a server-side task.
type TaskKind string

const (
	TaskKindSave  TaskKind = "save"
	TaskKindShare TaskKind = "share"
)

// TaskHandle is returned by a mutating operation and consumed once by the poller.
type TaskHandle struct {
	TaskID    string
	Kind      TaskKind
	CreatedAt time.Time
}

// NewTaskHandle creates a handle stamped with the current time.
func NewTaskHandle(taskID string, kind TaskKind) TaskHandle {
	return TaskHandle{TaskID: taskID, Kind: kind, CreatedAt: time.Now()}
}

// TaskStatus is one response of the task status endpoint.
type TaskStatus struct {
	TaskID    string `json:"task_id"`
	Status    int    `json:"status"`
	TaskTitle string `json:"task_title"`
	ShareID   string `json:"share_id"`
	SaveAs    struct {
		ToPdirName string `json:"to_pdir_name"`
	} `json:"save_as"`
}

// TaskResult is the terminal success payload of a polled task.
type TaskResult struct {
	TaskID string
	Kind   TaskKind
	Title  string
	// FolderName is the human-readable destination folder name (save tasks).
	FolderName string
	// ShareID is set for share tasks.
	ShareID  string
	Attempts int
}
