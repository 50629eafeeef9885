package cache

import (
	"testing"
	"time"

	"face-identification/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	svc, err := NewService(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, mr
}

func TestNewServiceUnavailable(t *testing.T) {
	_, err := NewService("127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestEmbeddingCache(t *testing.T) {
	svc, mr := newTestService(t)
	digest := Digest([]byte("photo"))

	emb, err := svc.GetEmbedding(digest)
	require.NoError(t, err)
	assert.Nil(t, emb)

	require.NoError(t, svc.SetEmbedding(digest, models.Embedding{0.1, -0.2, 0.3}))

	emb, err = svc.GetEmbedding(digest)
	require.NoError(t, err)
	assert.Equal(t, models.Embedding{0.1, -0.2, 0.3}, emb)

	mr.FastForward(8 * 24 * time.Hour)
	emb, err = svc.GetEmbedding(digest)
	require.NoError(t, err)
	assert.Nil(t, emb)
}

func TestDigestDependsOnContent(t *testing.T) {
	assert.Equal(t, Digest([]byte("a")), Digest([]byte("a")))
	assert.NotEqual(t, Digest([]byte("a")), Digest([]byte("b")))
	assert.Len(t, Digest(nil), 64)
}

func TestStatsCache(t *testing.T) {
	svc, _ := newTestService(t)

	stats, err := svc.GetStats()
	require.NoError(t, err)
	assert.Nil(t, stats)

	require.NoError(t, svc.SetStats(&models.Stats{TotalSubjects: 4, LoadedSubjects: 3}))

	stats, err = svc.GetStats()
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.TotalSubjects)
	assert.Equal(t, 3, stats.LoadedSubjects)

	require.NoError(t, svc.InvalidateStats())
	stats, err = svc.GetStats()
	require.NoError(t, err)
	assert.Nil(t, stats)
}
