package ports

import (
	"context"

	"github.com/paheweb/backend/internal/domain"
)

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	Update(ctx context.Context, task *domain.Task) error
	GetAll(ctx context.Context) ([]domain.Task, error)
	Delete(ctx context.Context, ids []string) error
}

type QueueSettingRepository interface {
	Get(ctx context.Context, key string) (*domain.QueueSetting, error)
	Set(ctx context.Context, setting *domain.QueueSetting) error
	GetAll(ctx context.Context) ([]domain.QueueSetting, error)
}
