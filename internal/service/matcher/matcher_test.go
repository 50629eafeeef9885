package matcher

import (
	"math"
	"testing"
	"time"

	"face-identification/internal/models"
	"face-identification/internal/service/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapOf(vectors ...models.Embedding) *snapshot.Snapshot {
	names := []string{"A", "B", "C", "D", "E"}
	entries := make([]snapshot.Entry, len(vectors))
	for i, v := range vectors {
		entries[i] = snapshot.Entry{
			Subject: models.Subject{ID: i + 1, Name: names[i]},
			Vector:  v,
		}
	}
	return snapshot.New(snapshot.Key{PageSize: 100}, entries, time.Now(), 0)
}

func TestMatchPicksNearest(t *testing.T) {
	snap := snapOf(models.Embedding{0.1}, models.Embedding{0.6}, models.Embedding{0.9})

	results, err := New(DefaultThreshold).Match(snap, []models.Embedding{{0}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, models.StatusKnown, results[0].Status)
	assert.Equal(t, "A", results[0].Name)
	require.NotNil(t, results[0].Subject)
	assert.Equal(t, 1, results[0].Subject.ID)
	assert.InDelta(t, 0.1, results[0].Distance, 1e-12)
}

func TestMatchThresholdIsStrict(t *testing.T) {
	snap := snapOf(models.Embedding{0, 0})
	m := New(DefaultThreshold)

	results, err := m.Match(snap, []models.Embedding{{0.5, 0}})
	require.NoError(t, err)
	assert.Equal(t, 0.5, results[0].Distance)
	assert.Equal(t, models.StatusUnknown, results[0].Status)
	assert.Equal(t, models.UnknownName, results[0].Name)
	assert.Nil(t, results[0].Subject)

	results, err = m.Match(snap, []models.Embedding{{0.4999, 0}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusKnown, results[0].Status)
}

func TestMatchTieBreakLowestIndex(t *testing.T) {
	snap := snapOf(models.Embedding{1, 0}, models.Embedding{-1, 0}, models.Embedding{0, 1})
	m := New(2)

	for i := 0; i < 20; i++ {
		results, err := m.Match(snap, []models.Embedding{{0, 0}})
		require.NoError(t, err)
		assert.Equal(t, "A", results[0].Name)
		assert.Equal(t, 1.0, results[0].Distance)
	}
}

func TestMatchPreservesQueryOrder(t *testing.T) {
	snap := snapOf(models.Embedding{0, 0}, models.Embedding{10, 10})

	results, err := New(DefaultThreshold).Match(snap, []models.Embedding{{10, 10.1}, {5, 5}, {0.1, 0}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "B", results[0].Name)
	assert.Equal(t, models.StatusUnknown, results[1].Status)
	assert.Equal(t, "A", results[2].Name)
}

func TestMatchEmptySnapshot(t *testing.T) {
	_, err := New(DefaultThreshold).Match(snapOf(), []models.Embedding{{0}})
	assert.ErrorIs(t, err, ErrNoKnownSubjects)

	_, err = New(DefaultThreshold).Match(nil, []models.Embedding{{0}})
	assert.ErrorIs(t, err, ErrNoKnownSubjects)
}

func TestMatchNoFaces(t *testing.T) {
	_, err := New(DefaultThreshold).Match(snapOf(models.Embedding{0}), nil)
	assert.ErrorIs(t, err, ErrNoFaceDetected)

	// Отсутствие лица важнее пустого снапшота
	_, err = New(DefaultThreshold).Match(snapOf(), nil)
	assert.ErrorIs(t, err, ErrNoFaceDetected)
}

func TestMatchDimensionMismatch(t *testing.T) {
	_, err := New(DefaultThreshold).Match(snapOf(models.Embedding{0, 0}), []models.Embedding{{0, 0, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNewDefaultsThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0).Threshold())
	assert.Equal(t, 0.6, New(0.6).Threshold())
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 5.0, Distance(models.Embedding{0, 0}, models.Embedding{3, 4}))
	assert.Equal(t, 0.0, Distance(models.Embedding{1, 2, 3}, models.Embedding{1, 2, 3}))
	assert.InDelta(t, math.Sqrt(2), Distance(models.Embedding{1, 0}, models.Embedding{0, 1}), 1e-12)
}
