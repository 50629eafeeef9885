package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"face-identification/internal/models"
	"face-identification/internal/service/imaging"
	"face-identification/internal/service/matcher"
	"face-identification/internal/service/snapshot"

	"github.com/google/uuid"
)

var (
	// ErrMalformedInput - загруженный файл не является изображением
	ErrMalformedInput = errors.New("файл не является изображением")
	// ErrExtractorFailed - Python сервер не смог обработать запрос
	ErrExtractorFailed = errors.New("ошибка извлечения лиц")
)

// FaceExtractor - Python клиент
type FaceExtractor interface {
	ExtractFaces(ctx context.Context, img image.Image) ([]models.DetectedFace, error)
}

// SnapshotSource - кэш снапшотов
type SnapshotSource interface {
	Get(ctx context.Context, key snapshot.Key) (*snapshot.Snapshot, error)
	Peek(key snapshot.Key) (*snapshot.Snapshot, bool)
	Invalidate()
}

// Notifier получает результаты распознавания (WebSocket)
type Notifier interface {
	MatchCompleted(requestID string, results []models.MatchResult)
}

// Service - точка входа распознавания: фото → лица → снапшот → сравнение
type Service struct {
	extractor    FaceExtractor
	snapshots    SnapshotSource
	matcher      *matcher.Matcher
	key          snapshot.Key
	maxImageSide int
	maxPixels    int
	notifiers    []Notifier
}

// NewService создает сервис распознавания для страницы key.
// maxPixels ограничивает заявленный размер загруженного фото (0 - imaging.DefaultMaxPixels).
func NewService(extractor FaceExtractor, snapshots SnapshotSource, m *matcher.Matcher, key snapshot.Key, maxImageSide, maxPixels int) *Service {
	return &Service{
		extractor:    extractor,
		snapshots:    snapshots,
		matcher:      m,
		key:          key,
		maxImageSide: maxImageSide,
		maxPixels:    maxPixels,
	}
}

// AddNotifier подключает получателя результатов (WebSocket, метрики)
func (s *Service) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// Identify распознает всех людей на фото.
//
// Ошибки: ErrMalformedInput, ErrExtractorFailed, matcher.ErrNoFaceDetected,
// matcher.ErrNoKnownSubjects, matcher.ErrDimensionMismatch.
// Недоступность базы не является ошибкой: используется старый снапшот
// и в ответе выставляется Degraded.
func (s *Service) Identify(ctx context.Context, data []byte) (*models.IdentifyResponse, error) {
	img, err := imaging.Decode(data, s.maxPixels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	faces, err := s.extractor.ExtractFaces(ctx, imaging.ToRGB(img, s.maxImageSide))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractorFailed, err)
	}
	// Без лиц снапшот не нужен - не запускаем сборку зря
	if len(faces) == 0 {
		return nil, matcher.ErrNoFaceDetected
	}

	snap, degraded, err := s.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	queries := make([]models.Embedding, len(faces))
	for i, f := range faces {
		queries[i] = f.Embedding
	}

	results, err := s.matcher.Match(snap, queries)
	if err != nil {
		return nil, err
	}
	for i := range results {
		box := faces[i].Box
		results[i].Box = &box
	}

	resp := &models.IdentifyResponse{
		RequestID: uuid.New().String(),
		Results:   results,
		Degraded:  degraded,
		BuiltAt:   snap.BuiltAt(),
	}

	known := 0
	for _, r := range results {
		if r.Status == models.StatusKnown {
			known++
		}
	}
	log.Printf("🔍 Запрос %s: лиц %d, опознано %d", resp.RequestID, len(results), known)

	for _, n := range s.notifiers {
		n.MatchCompleted(resp.RequestID, results)
	}

	return resp, nil
}

// currentSnapshot берет снапшот из кэша; при недоступной базе -
// старый снапшот (или пустой) с флагом degraded
func (s *Service) currentSnapshot(ctx context.Context) (*snapshot.Snapshot, bool, error) {
	snap, err := s.snapshots.Get(ctx, s.key)
	if err == nil {
		return snap, false, nil
	}
	if !errors.Is(err, snapshot.ErrSourceUnavailable) {
		return nil, false, err
	}
	if snap == nil {
		snap = snapshot.Empty(s.key, time.Time{})
	}
	return snap, true, nil
}

// Refresh - ручная инвалидация: следующий запрос пересоберет снапшот
func (s *Service) Refresh() {
	s.snapshots.Invalidate()
}

// Status - состояние текущего снапшота без пересборки.
// ok = false, если снапшот еще не собирался.
func (s *Service) Status() (info models.SnapshotInfo, ok bool) {
	snap, stale := s.snapshots.Peek(s.key)
	if snap == nil {
		return models.SnapshotInfo{PageSize: s.key.PageSize, PageNumber: s.key.PageNumber}, false
	}
	return snap.Info(stale), true
}
