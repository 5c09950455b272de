package domain

import "time"

// QueueSettings is the runtime configuration of the worker pool. Changes
// apply to the next dispatch; running downloads are never preempted.
type QueueSettings struct {
	MaxWorkers        int    `json:"max_workers"`
	DownloadPath      string `json:"download_path"`
	DefaultResolution int    `json:"default_resolution"`
}

// QueueSetting is one persisted settings row.
type QueueSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Key   string `gorm:"size:255;uniqueIndex;not null" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// QueueSnapshot is a consistent point-in-time projection of the task table.
// The recent completed/failed lists are bounded for display.
type QueueSnapshot struct {
	Running        bool `json:"running"`
	MaxWorkers     int  `json:"max_workers"`
	PendingCount   int  `json:"pending_count"`
	ActiveCount    int  `json:"active_count"`
	CompletedCount int  `json:"completed_count"`
	FailedCount    int  `json:"failed_count"`
	StoppedCount   int  `json:"stopped_count"`

	Active    []Task `json:"active"`
	Pending   []Task `json:"pending"`
	Completed []Task `json:"completed"`
	Failed    []Task `json:"failed"`
}
