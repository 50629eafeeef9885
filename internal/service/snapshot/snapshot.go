// Package snapshot держит в памяти снимок известных субъектов и их embeddings:
// сборка из базы + загрузка эталонных фото, кэш по ключу пагинации, инвалидация.
package snapshot

import (
	"fmt"
	"time"

	"face-identification/internal/models"
)

// Key - параметры пагинации, по которым собран снапшот
type Key struct {
	PageSize   int
	PageNumber int // С нуля
}

// Offset - смещение первой записи страницы
func (k Key) Offset() int {
	return k.PageSize * k.PageNumber
}

func (k Key) String() string {
	return fmt.Sprintf("size=%d page=%d", k.PageSize, k.PageNumber)
}

// Entry - субъект и embedding его эталонного фото
type Entry struct {
	Subject models.Subject
	Vector  models.Embedding
}

// Snapshot - неизменяемый снимок известных субъектов.
// Индекс i во всех методах указывает на одного и того же субъекта.
// Безопасен для одновременного чтения без блокировок.
type Snapshot struct {
	key      Key
	subjects []models.Subject
	vectors  []models.Embedding
	builtAt  time.Time
	skipped  int
}

// New собирает снапшот из entries в их порядке.
// skipped - сколько записей источника не попало в снапшот.
func New(key Key, entries []Entry, builtAt time.Time, skipped int) *Snapshot {
	s := &Snapshot{
		key:      key,
		subjects: make([]models.Subject, len(entries)),
		vectors:  make([]models.Embedding, len(entries)),
		builtAt:  builtAt,
		skipped:  skipped,
	}
	for i, e := range entries {
		s.subjects[i] = e.Subject
		// Копия, чтобы вызывающий не мог поменять снапшот
		s.vectors[i] = append(models.Embedding(nil), e.Vector...)
	}
	return s
}

// Empty - снапшот без субъектов
func Empty(key Key, builtAt time.Time) *Snapshot {
	return New(key, nil, builtAt, 0)
}

func (s *Snapshot) Key() Key { return s.key }

// BuiltAt - время окончания сборки
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

func (s *Snapshot) Len() int { return len(s.subjects) }

// Skipped - записи источника без фото или без лица
func (s *Snapshot) Skipped() int { return s.skipped }

func (s *Snapshot) Subject(i int) models.Subject { return s.subjects[i] }

// Vector возвращает копию embedding i-го субъекта
func (s *Snapshot) Vector(i int) models.Embedding {
	return append(models.Embedding(nil), s.vectors[i]...)
}

// DistanceTo считает dist(q, вектор i) без копирования вектора.
// dist не должна изменять аргументы.
func (s *Snapshot) DistanceTo(i int, q models.Embedding, dist func(a, b models.Embedding) float64) float64 {
	return dist(q, s.vectors[i])
}

// Dim - размерность векторов снапшота (0 для пустого)
func (s *Snapshot) Dim() int {
	if len(s.vectors) == 0 {
		return 0
	}
	return len(s.vectors[0])
}

// Names - имена в порядке снапшота
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.subjects))
	for i, subj := range s.subjects {
		names[i] = subj.Name
	}
	return names
}

// Info - состояние для API
func (s *Snapshot) Info(stale bool) models.SnapshotInfo {
	return models.SnapshotInfo{
		PageSize:   s.key.PageSize,
		PageNumber: s.key.PageNumber,
		Entries:    s.Len(),
		BuiltAt:    s.builtAt,
		Stale:      stale,
	}
}
