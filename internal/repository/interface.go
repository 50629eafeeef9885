package repository

import (
	"context"

	"face-identification/internal/models"
)

// RepositoryInterface определяет контракт для работы с данными
// Это позволяет легко мокать репозиторий в тестах
type RepositoryInterface interface {
	// ListSubjects - одна страница субъектов (limit/offset), порядок стабилен
	ListSubjects(ctx context.Context, limit, offset int) ([]models.Subject, error)
	GetSubjectByID(ctx context.Context, id int) (*models.Subject, error)
	SearchSubjects(ctx context.Context, query string) ([]models.Subject, error)
	CountSubjects(ctx context.Context) (int, error)
}

// Проверяем что Repository реализует RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)
