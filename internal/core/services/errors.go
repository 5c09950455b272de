package services

import "errors"

// Queue errors
var (
	ErrTaskInvalidInput  = errors.New("queue: invalid input")
	ErrInvalidResolution = errors.New("queue: invalid resolution")
)

// Settings errors
var (
	ErrInvalidMaxWorkers   = errors.New("settings: max_workers must be between 1 and 8")
	ErrInvalidDownloadPath = errors.New("settings: download_path must be an absolute path")
)
