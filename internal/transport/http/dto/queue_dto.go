package dto

import "github.com/paheweb/backend/internal/domain"

type DownloadRequest struct {
	AnimeSession string  `json:"anime_session,omitempty"`
	AnimeTitle   string  `json:"anime_title"`
	Episode      float64 `json:"episode"`
	// Resolution is optional; when omitted the queue's default resolution
	// setting applies. 0 is a meaningful value (highest available).
	Resolution *int   `json:"resolution,omitempty"`
	Filename   string `json:"filename,omitempty"`
	URL        string `json:"url,omitempty"`
}

func (r *DownloadRequest) Validate() []string {
	var errors []string
	if r.AnimeTitle == "" {
		errors = append(errors, "anime_title is required")
	}
	if r.Episode < 0 {
		errors = append(errors, "episode must not be negative")
	}
	if r.Resolution != nil && *r.Resolution < -1 {
		errors = append(errors, "resolution must be -1 (lowest), 0 (highest) or a positive height")
	}
	return errors
}

type BatchDownloadRequest struct {
	AnimeSession string `json:"anime_session,omitempty"`
	AnimeTitle   string `json:"anime_title"`
	StartEpisode int    `json:"start_episode"`
	EndEpisode   int    `json:"end_episode"`
	Resolution   *int   `json:"resolution,omitempty"`
}

func (r *BatchDownloadRequest) Validate() []string {
	var errors []string
	if r.AnimeTitle == "" {
		errors = append(errors, "anime_title is required")
	}
	if r.Resolution != nil && *r.Resolution < -1 {
		errors = append(errors, "resolution must be -1 (lowest), 0 (highest) or a positive height")
	}
	return errors
}

type EnqueueResponse struct {
	Status     string       `json:"status"`
	AddedCount int          `json:"added_count"`
	Task       *domain.Task `json:"task,omitempty"`
}

type RetryResponse struct {
	RetriedCount int `json:"retried_count"`
}

type ClearResponse struct {
	ClearedCount int `json:"cleared_count"`
}

type CancelResponse struct {
	Success bool `json:"success"`
}

type UpdateSettingsRequest struct {
	MaxWorkers        *int    `json:"max_workers,omitempty"`
	DownloadPath      *string `json:"download_path,omitempty"`
	DefaultResolution *int    `json:"default_resolution,omitempty"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}
