package db

import (
	"context"
	"errors"

	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type queueSettingRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQueueSettingRepository(db *gorm.DB, log *logger.Logger) ports.QueueSettingRepository {
	return &queueSettingRepository{db: db, log: log}
}

func (r *queueSettingRepository) Get(ctx context.Context, key string) (*domain.QueueSetting, error) {
	var setting domain.QueueSetting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorw("setting_repo_get_failed", "key", key, "error", err)
		return nil, err
	}
	return &setting, nil
}

func (r *queueSettingRepository) Set(ctx context.Context, setting *domain.QueueSetting) error {
	var existing domain.QueueSetting
	err := r.db.WithContext(ctx).Where("key = ?", setting.Key).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := r.db.WithContext(ctx).Create(setting).Error; err != nil {
				r.log.Errorw("setting_repo_create_failed", "key", setting.Key, "error", err)
				return err
			}
			return nil
		}
		r.log.Errorw("setting_repo_get_for_set_failed", "key", setting.Key, "error", err)
		return err
	}
	existing.Value = setting.Value
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		r.log.Errorw("setting_repo_update_failed", "key", setting.Key, "error", err)
		return err
	}
	return nil
}

func (r *queueSettingRepository) GetAll(ctx context.Context) ([]domain.QueueSetting, error) {
	var settings []domain.QueueSetting
	if err := r.db.WithContext(ctx).Find(&settings).Error; err != nil {
		r.log.Errorw("setting_repo_list_failed", "error", err)
		return nil, err
	}
	return settings, nil
}
