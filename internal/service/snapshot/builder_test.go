package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"face-identification/internal/models"
	"face-identification/internal/service/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultKey = Key{PageSize: 100, PageNumber: 0}

func TestBuildPreservesSourceOrder(t *testing.T) {
	source, fetcher, extractor := fixture(t, 3)
	builder := NewBuilder(source, fetcher, extractor, WithBuilderClock(func() time.Time { return testNow }))

	snap, err := builder.Build(context.Background(), defaultKey)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, []string{"subject-1", "subject-2", "subject-3"}, snap.Names())
	for i := 0; i < snap.Len(); i++ {
		// Индексы согласованы между субъектом и вектором
		assert.Equal(t, float64(snap.Subject(i).ID), snap.Vector(i)[0])
	}
	assert.Equal(t, testNow, snap.BuiltAt())
	assert.Equal(t, defaultKey, snap.Key())
	assert.Equal(t, 2, snap.Dim())
}

func TestBuildSkipsFailedFetch(t *testing.T) {
	source, fetcher, extractor := fixture(t, 5)
	fetcher.failing["https://img.example/3.jpg"] = true

	snap, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), defaultKey)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, 1, snap.Skipped())
	assert.Equal(t, []string{"subject-1", "subject-2", "subject-4", "subject-5"}, snap.Names())
}

func TestBuildSkipsRecordsWithoutFace(t *testing.T) {
	source, fetcher, extractor := fixture(t, 3)
	extractor.faces[2] = nil

	snap, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), defaultKey)
	require.NoError(t, err)

	assert.Equal(t, []string{"subject-1", "subject-3"}, snap.Names())
}

func TestBuildUsesFirstFace(t *testing.T) {
	source, fetcher, extractor := fixture(t, 1)
	extractor.faces[1] = []models.DetectedFace{face(0.7, 0.7), face(9, 9)}

	snap, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), defaultKey)
	require.NoError(t, err)

	require.Equal(t, 1, snap.Len())
	assert.Equal(t, models.Embedding{0.7, 0.7}, snap.Vector(0))
}

func TestBuildSkipsMalformedImage(t *testing.T) {
	source, fetcher, extractor := fixture(t, 2)
	fetcher.images["https://img.example/1.jpg"] = []byte("<html>not found</html>")

	snap, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), defaultKey)
	require.NoError(t, err)

	assert.Equal(t, []string{"subject-2"}, snap.Names())
}

func TestBuildSkipsOversizedImage(t *testing.T) {
	source, fetcher, extractor := fixture(t, 2)
	fetcher.images["https://img.example/1.jpg"] = sizedIDImage(t, 1, 3)

	snap, err := NewBuilder(source, fetcher, extractor, WithMaxPixels(4)).Build(context.Background(), defaultKey)
	require.NoError(t, err)

	assert.Equal(t, []string{"subject-2"}, snap.Names())
	assert.Equal(t, 1, snap.Skipped())
	// Пропущено до извлечения
	assert.Equal(t, 1, extractor.calls)
}

func TestBuildSkipsDimensionMismatch(t *testing.T) {
	source, fetcher, extractor := fixture(t, 3)
	extractor.faces[2] = []models.DetectedFace{face(1, 2, 3)}

	snap, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), defaultKey)
	require.NoError(t, err)

	assert.Equal(t, []string{"subject-1", "subject-3"}, snap.Names())
}

func TestBuildSourceUnavailable(t *testing.T) {
	source, fetcher, extractor := fixture(t, 3)
	source.err = errors.New("dial tcp: connection refused")

	snap, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), defaultKey)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 0, fetcher.calls)
}

func TestBuildInvalidKey(t *testing.T) {
	source, fetcher, extractor := fixture(t, 1)

	_, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), Key{PageSize: 0})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
}

func TestBuildPagination(t *testing.T) {
	source, fetcher, extractor := fixture(t, 10)

	snap, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), Key{PageSize: 3, PageNumber: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"subject-7", "subject-8", "subject-9"}, snap.Names())
}

func TestBuildEmptySource(t *testing.T) {
	source, fetcher, extractor := fixture(t, 0)

	snap, err := NewBuilder(source, fetcher, extractor).Build(context.Background(), defaultKey)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
	assert.Equal(t, 0, snap.Dim())
}

func TestBuildFetchTimeoutSkipsOnlyThatRecord(t *testing.T) {
	source, fetcher, extractor := fixture(t, 3)
	fetcher.hang["https://img.example/2.jpg"] = true

	builder := NewBuilder(source, fetcher, extractor, WithFetchTimeout(20*time.Millisecond))

	start := time.Now()
	snap, err := builder.Build(context.Background(), defaultKey)
	require.NoError(t, err)

	assert.Equal(t, []string{"subject-1", "subject-3"}, snap.Names())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBuildParallelWorkersKeepOrder(t *testing.T) {
	source, fetcher, extractor := fixture(t, 40)
	fetcher.failing["https://img.example/10.jpg"] = true

	snap, err := NewBuilder(source, fetcher, extractor, WithWorkers(8)).Build(context.Background(), defaultKey)
	require.NoError(t, err)

	require.Equal(t, 39, snap.Len())
	prev := 0
	for i := 0; i < snap.Len(); i++ {
		id := snap.Subject(i).ID
		assert.Greater(t, id, prev)
		assert.Equal(t, float64(id), snap.Vector(i)[0])
		prev = id
	}
}

// memoryEmbeddings - кэш embeddings в памяти
type memoryEmbeddings struct {
	data map[string]models.Embedding
	sets int
}

func (m *memoryEmbeddings) GetEmbedding(digest string) (models.Embedding, error) {
	return m.data[digest], nil
}

func (m *memoryEmbeddings) SetEmbedding(digest string, e models.Embedding) error {
	m.data[digest] = e
	m.sets++
	return nil
}

func TestBuildUsesEmbeddingCache(t *testing.T) {
	source, fetcher, extractor := fixture(t, 2)
	embeddings := &memoryEmbeddings{data: map[string]models.Embedding{
		cache.Digest(fetcher.images["https://img.example/1.jpg"]): {42, 42},
	}}

	snap, err := NewBuilder(source, fetcher, extractor, WithEmbeddingCache(embeddings)).Build(context.Background(), defaultKey)
	require.NoError(t, err)

	require.Equal(t, 2, snap.Len())
	assert.Equal(t, models.Embedding{42, 42}, snap.Vector(0))
	assert.Equal(t, models.Embedding{2, 0}, snap.Vector(1))
	// Экстрактор вызван только для промаха кэша
	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, 1, embeddings.sets)
	// Фото все равно загружаются каждый раз
	assert.Equal(t, 2, fetcher.calls)
}

func TestSnapshotCopiesVectors(t *testing.T) {
	vec := models.Embedding{1, 2}
	snap := New(defaultKey, []Entry{{Subject: models.Subject{ID: 1}, Vector: vec}}, testNow, 0)

	vec[0] = 99
	assert.Equal(t, 1.0, snap.Vector(0)[0])

	// Изменение возвращенного вектора не меняет снапшот
	got := snap.Vector(0)
	got[1] = -1
	assert.Equal(t, models.Embedding{1, 2}, snap.Vector(0))
}

func TestSnapshotDistanceTo(t *testing.T) {
	snap := New(defaultKey, []Entry{{Subject: models.Subject{ID: 1}, Vector: models.Embedding{3, 4}}}, testNow, 0)

	sum := func(a, b models.Embedding) float64 { return a[0] + b[0] + b[1] }
	assert.Equal(t, 8.0, snap.DistanceTo(0, models.Embedding{1}, sum))
}
