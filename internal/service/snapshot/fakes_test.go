package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"face-identification/internal/models"

	"github.com/stretchr/testify/require"
)

// fakeSource - источник субъектов в памяти
type fakeSource struct {
	mu      sync.Mutex
	records []models.Subject
	err     error
	calls   int
}

func (f *fakeSource) ListSubjects(ctx context.Context, limit, offset int) ([]models.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if offset >= len(f.records) {
		return []models.Subject{}, nil
	}
	end := offset + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	return append([]models.Subject(nil), f.records[offset:end]...), nil
}

func (f *fakeSource) set(records []models.Subject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

// fakeFetcher отдает PNG, у которого красный канал = ID субъекта
type fakeFetcher struct {
	mu      sync.Mutex
	images  map[string][]byte
	failing map[string]bool
	hang    map[string]bool // ждать отмены контекста
	calls   int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		images:  make(map[string][]byte),
		failing: make(map[string]bool),
		hang:    make(map[string]bool),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	data, ok := f.images[ref]
	failing := f.failing[ref]
	hang := f.hang[ref]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failing || !ok {
		return nil, errors.New("404")
	}
	return data, nil
}

// fakeExtractor возвращает заранее заданные лица по ID из пикселя
type fakeExtractor struct {
	mu    sync.Mutex
	faces map[int][]models.DetectedFace
	calls int
}

func (f *fakeExtractor) ExtractFaces(ctx context.Context, img image.Image) ([]models.DetectedFace, error) {
	r, _, _, _ := img.At(0, 0).RGBA()
	id := int(r >> 8)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.faces[id], nil
}

func idImage(t *testing.T, id int) []byte {
	t.Helper()
	return sizedIDImage(t, id, 2)
}

func sizedIDImage(t *testing.T, id, side int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for x := 0; x < side; x++ {
		for y := 0; y < side; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(id), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func face(v ...float64) models.DetectedFace {
	return models.DetectedFace{Embedding: models.Embedding(v)}
}

// fixture: n субъектов с ID 1..n, у каждого одно лицо [id]
func fixture(t *testing.T, n int) (*fakeSource, *fakeFetcher, *fakeExtractor) {
	t.Helper()
	source := &fakeSource{}
	fetcher := newFakeFetcher()
	extractor := &fakeExtractor{faces: make(map[int][]models.DetectedFace)}

	for id := 1; id <= n; id++ {
		url := fmt.Sprintf("https://img.example/%d.jpg", id)
		source.records = append(source.records, models.Subject{ID: id, Name: fmt.Sprintf("subject-%d", id), ImageURL: url})
		fetcher.images[url] = idImage(t, id)
		extractor.faces[id] = []models.DetectedFace{face(float64(id), 0)}
	}
	return source, fetcher, extractor
}

// fakeBuilder - сборщик с ручным управлением для тестов кэша
type fakeBuilder struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{} // если не nil - Build ждет закрытия
	started chan struct{}
	calls   int
	entries []Entry
}

func (f *fakeBuilder) Build(ctx context.Context, key Key) (*Snapshot, error) {
	f.mu.Lock()
	f.calls++
	gate, started, err, entries := f.gate, f.started, f.err, f.entries
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return New(key, entries, testNow, 0), nil
}

func (f *fakeBuilder) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBuilder) setEntries(entries ...Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
}

// recordingObserver запоминает события
type recordingObserver struct {
	mu          sync.Mutex
	built       int
	invalidated int
	stale       int
	failed      int
}

func (o *recordingObserver) SnapshotBuilt(*Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.built++
}

func (o *recordingObserver) SnapshotInvalidated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalidated++
}

func (o *recordingObserver) SnapshotStale(Key, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

func (o *recordingObserver) SnapshotFailed(Key, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}
