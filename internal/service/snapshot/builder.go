package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"face-identification/internal/models"
	"face-identification/internal/service/cache"
	"face-identification/internal/service/imaging"

	"golang.org/x/sync/errgroup"
)

// ErrSourceUnavailable - база субъектов недоступна, снапшот не собран
var ErrSourceUnavailable = errors.New("источник субъектов недоступен")

// DefaultFetchTimeout - таймаут загрузки одного эталонного фото
const DefaultFetchTimeout = 10 * time.Second

// RecordSource - постраничный список субъектов
type RecordSource interface {
	ListSubjects(ctx context.Context, limit, offset int) ([]models.Subject, error)
}

// ImageFetcher загружает байты фото по ссылке
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Extractor находит лица и считает embeddings. Пустой результат - не ошибка.
type Extractor interface {
	ExtractFaces(ctx context.Context, img image.Image) ([]models.DetectedFace, error)
}

// EmbeddingCache - кэш embeddings по digest содержимого фото
type EmbeddingCache interface {
	GetEmbedding(digest string) (models.Embedding, error)
	SetEmbedding(digest string, embedding models.Embedding) error
}

// Builder собирает снапшот: страница из базы → фото → embedding
type Builder struct {
	source       RecordSource
	fetcher      ImageFetcher
	extractor    Extractor
	embeddings   EmbeddingCache
	fetchTimeout time.Duration
	workers      int
	maxImageSide int
	maxPixels    int
	now          func() time.Time
}

// BuilderOption настраивает Builder
type BuilderOption func(*Builder)

// WithEmbeddingCache включает кэш embeddings (Redis)
func WithEmbeddingCache(c EmbeddingCache) BuilderOption {
	return func(b *Builder) { b.embeddings = c }
}

func WithFetchTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) { b.fetchTimeout = d }
}

// WithWorkers - сколько записей обрабатывать параллельно
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

func WithMaxImageSide(px int) BuilderOption {
	return func(b *Builder) { b.maxImageSide = px }
}

// WithMaxPixels - эталонные фото больше px пикселей пропускаются без декодирования
func WithMaxPixels(px int) BuilderOption {
	return func(b *Builder) { b.maxPixels = px }
}

func WithBuilderClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder создает сборщик снапшотов
func NewBuilder(source RecordSource, fetcher ImageFetcher, extractor Extractor, opts ...BuilderOption) *Builder {
	b := &Builder{
		source:       source,
		fetcher:      fetcher,
		extractor:    extractor,
		fetchTimeout: DefaultFetchTimeout,
		workers:      1,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build собирает снапшот для страницы key.
// Ошибка источника - ErrSourceUnavailable. Ошибки по отдельным записям
// не прерывают сборку: запись просто не попадает в снапшот.
func (b *Builder) Build(ctx context.Context, key Key) (*Snapshot, error) {
	if key.PageSize <= 0 || key.PageNumber < 0 {
		return nil, fmt.Errorf("неверная страница (%s)", key)
	}

	records, err := b.source.ListSubjects(ctx, key.PageSize, key.Offset())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	// Результаты пишутся по индексу записи - порядок источника сохраняется
	vectors := make([]models.Embedding, len(records))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i := range records {
		i := i
		g.Go(func() error {
			vectors[i] = b.resolve(ctx, &records[i])
			return nil
		})
	}
	g.Wait()

	entries := make([]Entry, 0, len(records))
	dim := 0
	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			log.Printf("⚠️  Субъект %d: размерность %d вместо %d, пропускаем", records[i].ID, len(vec), dim)
			continue
		}
		entries = append(entries, Entry{Subject: records[i], Vector: vec})
	}

	snap := New(key, entries, b.now(), len(records)-len(entries))
	log.Printf("📸 Снапшот (%s): %d из %d субъектов", key, snap.Len(), len(records))
	return snap, nil
}

// resolve возвращает embedding первого лица на эталонном фото
// или nil, если запись нужно пропустить
func (b *Builder) resolve(ctx context.Context, subject *models.Subject) models.Embedding {
	data, err := b.fetch(ctx, subject.ImageURL)
	if err != nil {
		log.Printf("⚠️  Субъект %d (%s): %v", subject.ID, subject.Name, err)
		return nil
	}

	digest := cache.Digest(data)
	if b.embeddings != nil {
		if cached, err := b.embeddings.GetEmbedding(digest); err == nil && len(cached) > 0 {
			return cached
		}
	}

	img, err := imaging.Decode(data, b.maxPixels)
	if err != nil {
		log.Printf("⚠️  Субъект %d (%s): %v", subject.ID, subject.Name, err)
		return nil
	}

	faces, err := b.extractor.ExtractFaces(ctx, imaging.ToRGB(img, b.maxImageSide))
	if err != nil {
		log.Printf("⚠️  Субъект %d (%s): ошибка извлечения: %v", subject.ID, subject.Name, err)
		return nil
	}
	if len(faces) == 0 || len(faces[0].Embedding) == 0 {
		log.Printf("⚠️  Субъект %d (%s): лицо не найдено", subject.ID, subject.Name)
		return nil
	}

	// Берем первое найденное лицо, остальные игнорируем
	embedding := faces[0].Embedding

	if b.embeddings != nil {
		if err := b.embeddings.SetEmbedding(digest, embedding); err != nil {
			log.Printf("⚠️  Не удалось сохранить embedding в кэш: %v", err)
		}
	}

	return embedding
}

func (b *Builder) fetch(ctx context.Context, ref string) ([]byte, error) {
	if b.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.fetchTimeout)
		defer cancel()
	}
	return b.fetcher.Fetch(ctx, ref)
}
