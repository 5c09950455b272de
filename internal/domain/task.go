package domain

import "time"

// Task is one requested download. Identity fields are immutable after
// creation; status, progress and speed are written only by the queue service.
type Task struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AnimeSession string  `gorm:"size:255;index" json:"anime_session,omitempty"`
	AnimeTitle   string  `gorm:"size:255;not null" json:"anime_title"`
	Episode      float64 `json:"episode"`
	Resolution   int     `json:"resolution"`
	Filename     string  `gorm:"size:255" json:"filename"`
	URL          string  `gorm:"type:text" json:"-"`

	Status          TaskStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Progress        float64    `json:"progress"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	TotalBytes      int64      `json:"total_bytes"`
	Speed           float64    `json:"speed"`
	Error           string     `gorm:"type:text" json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
