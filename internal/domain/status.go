package domain

type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
	TaskStatusStopped     TaskStatus = "stopped"
	TaskStatusStopping    TaskStatus = "stopping"
)

func (s TaskStatus) String() string {
	return string(s)
}

// IsActive reports whether a worker currently owns the task.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusDownloading || s == TaskStatusStopping
}

// IsTerminal reports whether the task is done and eligible for ClearCompleted.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusStopped
}
