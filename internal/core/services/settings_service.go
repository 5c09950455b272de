package services

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
)

const (
	settingKeyMaxWorkers        = "max_workers"
	settingKeyDownloadPath      = "download_path"
	settingKeyDefaultResolution = "default_resolution"

	maxWorkersCeiling = 8
)

// QueueSettingsService holds the runtime queue settings. Reads come from an
// in-memory snapshot; writes are validated, persisted as key/value rows, and
// picked up by the worker pool at its next dispatch.
type QueueSettingsService struct {
	repo   ports.QueueSettingRepository
	logger *logger.Logger

	mu      sync.RWMutex
	current domain.QueueSettings
}

func NewQueueSettingsService(repo ports.QueueSettingRepository, log *logger.Logger, defaults domain.QueueSettings) (*QueueSettingsService, error) {
	s := &QueueSettingsService{
		repo:    repo,
		logger:  log,
		current: defaults,
	}
	if s.current.MaxWorkers < 1 {
		s.current.MaxWorkers = 1
	}
	if err := s.load(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// load overlays persisted rows on top of the configured defaults.
func (s *QueueSettingsService) load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		switch row.Key {
		case settingKeyMaxWorkers:
			if n, err := strconv.Atoi(row.Value); err == nil && n >= 1 && n <= maxWorkersCeiling {
				s.current.MaxWorkers = n
			}
		case settingKeyDownloadPath:
			if row.Value != "" {
				s.current.DownloadPath = row.Value
			}
		case settingKeyDefaultResolution:
			if n, err := strconv.Atoi(row.Value); err == nil {
				s.current.DefaultResolution = n
			}
		}
	}
	s.logger.Infow("settings_loaded",
		"max_workers", s.current.MaxWorkers,
		"download_path", s.current.DownloadPath,
	)
	return nil
}

func (s *QueueSettingsService) Current() domain.QueueSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies the fields that are set, rejecting the whole request if any
// of them fails validation. The download directory is created eagerly so a
// bad path fails here instead of inside a worker.
func (s *QueueSettingsService) Update(ctx context.Context, input ports.UpdateSettingsInput) (domain.QueueSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if input.MaxWorkers != nil {
		if *input.MaxWorkers < 1 || *input.MaxWorkers > maxWorkersCeiling {
			return s.current, ErrInvalidMaxWorkers
		}
		next.MaxWorkers = *input.MaxWorkers
	}
	if input.DownloadPath != nil {
		if *input.DownloadPath == "" || !filepath.IsAbs(*input.DownloadPath) {
			return s.current, ErrInvalidDownloadPath
		}
		if err := os.MkdirAll(*input.DownloadPath, 0o755); err != nil {
			return s.current, err
		}
		next.DownloadPath = *input.DownloadPath
	}
	if input.DefaultResolution != nil {
		next.DefaultResolution = *input.DefaultResolution
	}

	if err := s.persist(ctx, next); err != nil {
		return s.current, err
	}
	s.current = next
	s.logger.Infow("settings_updated",
		"max_workers", next.MaxWorkers,
		"download_path", next.DownloadPath,
		"default_resolution", next.DefaultResolution,
	)
	return next, nil
}

func (s *QueueSettingsService) persist(ctx context.Context, settings domain.QueueSettings) error {
	if s.repo == nil {
		return nil
	}
	rows := []domain.QueueSetting{
		{Key: settingKeyMaxWorkers, Value: strconv.Itoa(settings.MaxWorkers)},
		{Key: settingKeyDownloadPath, Value: settings.DownloadPath},
		{Key: settingKeyDefaultResolution, Value: strconv.Itoa(settings.DefaultResolution)},
	}
	for i := range rows {
		if err := s.repo.Set(ctx, &rows[i]); err != nil {
			s.logger.Errorw("settings_persist_failed", "key", rows[i].Key, "error", err)
			return err
		}
	}
	return nil
}
