package matcher

import (
	"errors"
	"fmt"
	"math"

	"face-identification/internal/models"
	"face-identification/internal/service/snapshot"
)

// DefaultThreshold - максимальная дистанция для "known" (строго меньше)
const DefaultThreshold = 0.5

var (
	// ErrNoKnownSubjects - в снапшоте нет ни одного субъекта
	ErrNoKnownSubjects = errors.New("нет загруженных известных лиц")
	// ErrNoFaceDetected - на запросе не найдено ни одного лица
	ErrNoFaceDetected = errors.New("на изображении не найдено лиц")
	// ErrDimensionMismatch - длина вектора запроса не совпадает со снапшотом
	ErrDimensionMismatch = errors.New("размерность вектора не совпадает")
)

// Matcher ищет ближайшего субъекта по евклидовой дистанции
type Matcher struct {
	threshold float64
}

// New создает matcher. threshold <= 0 - DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold возвращает порог
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match сравнивает каждый вектор запроса со снапшотом.
// Один результат на вектор, порядок сохраняется.
func (m *Matcher) Match(snap *snapshot.Snapshot, queries []models.Embedding) ([]models.MatchResult, error) {
	if len(queries) == 0 {
		return nil, ErrNoFaceDetected
	}
	if snap == nil || snap.Len() == 0 {
		return nil, ErrNoKnownSubjects
	}

	dim := snap.Dim()
	results := make([]models.MatchResult, len(queries))
	for i, q := range queries {
		if len(q) != dim {
			return nil, fmt.Errorf("%w: запрос %d, снапшот %d", ErrDimensionMismatch, len(q), dim)
		}
		results[i] = m.matchOne(snap, q)
	}
	return results, nil
}

func (m *Matcher) matchOne(snap *snapshot.Snapshot, q models.Embedding) models.MatchResult {
	best := -1
	bestDist := math.Inf(1)
	for i := 0; i < snap.Len(); i++ {
		// Строгое "<": при равенстве остается меньший индекс
		if d := snap.DistanceTo(i, q, Distance); d < bestDist {
			best, bestDist = i, d
		}
	}

	if best >= 0 && bestDist < m.threshold {
		subject := snap.Subject(best)
		info := subject.Info()
		return models.MatchResult{
			Status:   models.StatusKnown,
			Name:     subject.Name,
			Subject:  &info,
			Distance: bestDist,
		}
	}

	return models.MatchResult{
		Status:   models.StatusUnknown,
		Name:     models.UnknownName,
		Distance: bestDist,
	}
}

// Distance - евклидова дистанция по всему вектору. Длины должны совпадать.
func Distance(a, b models.Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
