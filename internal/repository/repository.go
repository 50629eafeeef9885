package repository

import (
	"context"
	"strings"

	"face-identification/internal/models"

	"github.com/jmoiron/sqlx"
)

const subjectColumns = `id, name, image_url, national_id, document_id, mother_name, father_name, created_at`

// Repository инкапсулирует всю работу с базой данных
type Repository struct {
	db *sqlx.DB
}

// NewRepository создает новый репозиторий
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ============ SUBJECTS ============

// ListSubjects возвращает страницу субъектов в порядке id
func (r *Repository) ListSubjects(ctx context.Context, limit, offset int) ([]models.Subject, error) {
	subjects := []models.Subject{}
	err := r.db.SelectContext(ctx, &subjects, `
		SELECT `+subjectColumns+`
		FROM subjects
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return subjects, nil
}

// GetSubjectByID получает субъекта по ID
func (r *Repository) GetSubjectByID(ctx context.Context, id int) (*models.Subject, error) {
	var subject models.Subject
	err := r.db.GetContext(ctx, &subject, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

// SearchSubjects ищет по имени, ID или номеру документа
func (r *Repository) SearchSubjects(ctx context.Context, query string) ([]models.Subject, error) {
	subjects := []models.Subject{}
	err := r.db.SelectContext(ctx, &subjects, `
		SELECT `+subjectColumns+`
		FROM subjects
		WHERE name ILIKE $1 ESCAPE '\' OR CAST(id AS TEXT) = $2 OR national_id = $2 OR document_id = $2
		ORDER BY id
	`, "%"+escapeLike(query)+"%", query)
	if err != nil {
		return nil, err
	}
	return subjects, nil
}

// escapeLike экранирует спецсимволы LIKE, запрос ищется как обычный текст
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ============ STATS ============

// CountSubjects возвращает общее число субъектов
func (r *Repository) CountSubjects(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM subjects")
	return count, err
}
