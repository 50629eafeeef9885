package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// SnapshotBuilder - то, что умеет собрать снапшот (Builder или фейк в тестах)
type SnapshotBuilder interface {
	Build(ctx context.Context, key Key) (*Snapshot, error)
}

// Observer получает события кэша (WebSocket уведомления).
// Вызывается вне блокировок.
type Observer interface {
	SnapshotBuilt(s *Snapshot)
	SnapshotInvalidated()
	SnapshotStale(key Key, err error)
	// SnapshotFailed - сборка не удалась и старого снапшота нет
	SnapshotFailed(key Key, err error)
}

// slot - состояние одного ключа пагинации
type slot struct {
	snapshot *Snapshot // последний собранный, может быть stale
	stale    bool
	gen      uint64 // растет при каждой инвалидации ключа
}

// Cache хранит не больше одного снапшота на ключ пагинации.
// Повторный Get с тем же ключом отдает тот же снапшот до инвалидации
// (или до истечения maxAge, если он задан).
// На ключ одновременно идет не больше одной сборки.
type Cache struct {
	builder   SnapshotBuilder
	observers []Observer
	maxAge    time.Duration
	now       func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	slots map[Key]*slot

	builds atomic.Int64
}

// CacheOption настраивает Cache
type CacheOption func(*Cache)

// WithMaxAge - снапшот старше d пересобирается при следующем Get. 0 - без TTL.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *Cache) { c.maxAge = d }
}

// WithObserver подписывает o на события кэша. Можно передавать несколько раз.
func WithObserver(o Observer) CacheOption {
	return func(c *Cache) { c.observers = append(c.observers, o) }
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache создает пустой кэш
func NewCache(builder SnapshotBuilder, opts ...CacheOption) *Cache {
	c := &Cache{
		builder: builder,
		now:     time.Now,
		slots:   make(map[Key]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get возвращает актуальный снапшот для key, собирая его при необходимости.
//
// Если источник недоступен, а раньше снапшот уже был, возвращается старый
// снапшот вместе с ошибкой, обернутой в ErrSourceUnavailable.
// Без старого снапшота возвращается (nil, err).
func (c *Cache) Get(ctx context.Context, key Key) (*Snapshot, error) {
	c.mu.RLock()
	if s, ok := c.slots[key]; ok && c.fresh(s) {
		snap := s.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	if c.fresh(s) {
		snap := s.snapshot
		c.mu.Unlock()
		return snap, nil
	}
	gen := s.gen
	c.mu.Unlock()

	// Поколение в ключе: после инвалидации новый Get не присоединяется
	// к сборке, начатой до нее
	flightKey := fmt.Sprintf("%d/%d#%d", key.PageSize, key.PageNumber, gen)
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.rebuild(key, gen)
	})

	select {
	case res := <-ch:
		snap, _ := res.Val.(*Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// rebuild выполняется одной горутиной на поколение ключа
func (c *Cache) rebuild(key Key, gen uint64) (*Snapshot, error) {
	c.builds.Add(1)

	// Сборка общая для всех ожидающих - отмена одного запроса ее не прерывает
	snap, err := c.builder.Build(context.Background(), key)
	if err != nil {
		c.mu.RLock()
		prev := c.slots[key].snapshot
		c.mu.RUnlock()

		if errors.Is(err, ErrSourceUnavailable) {
			log.Printf("🚨 Снапшот (%s) не обновлен, данные могут устаревать: %v", key, err)
		} else {
			log.Printf("❌ Ошибка сборки снапшота (%s): %v", key, err)
		}

		if prev != nil {
			for _, o := range c.observers {
				o.SnapshotStale(key, err)
			}
			return prev, err
		}
		for _, o := range c.observers {
			o.SnapshotFailed(key, err)
		}
		return nil, err
	}

	c.mu.Lock()
	s := c.slots[key]
	installed := s.gen == gen
	if installed {
		// Атомарная замена: читатели видят либо старый, либо новый снапшот
		s.snapshot = snap
		s.stale = false
	}
	c.mu.Unlock()

	if !installed {
		log.Printf("⚠️  Снапшот (%s) инвалидирован во время сборки, не сохраняем", key)
		return snap, nil
	}

	for _, o := range c.observers {
		o.SnapshotBuilt(snap)
	}
	return snap, nil
}

// fresh - можно ли отдать снапшот слота без пересборки. Вызывать под mu.
func (c *Cache) fresh(s *slot) bool {
	if s.snapshot == nil || s.stale {
		return false
	}
	if c.maxAge > 0 && c.now().Sub(s.snapshot.BuiltAt()) >= c.maxAge {
		return false
	}
	return true
}

// Invalidate помечает все ключи устаревшими. Не ждет сборок:
// следующий Get по любому ключу начнет новую сборку.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	for _, s := range c.slots {
		s.stale = true
		s.gen++
	}
	c.mu.Unlock()

	log.Println("🔄 Кэш снапшотов инвалидирован")
	for _, o := range c.observers {
		o.SnapshotInvalidated()
	}
}

// InvalidateKey помечает устаревшим только один ключ
func (c *Cache) InvalidateKey(key Key) {
	c.mu.Lock()
	if s, ok := c.slots[key]; ok {
		s.stale = true
		s.gen++
	}
	c.mu.Unlock()

	for _, o := range c.observers {
		o.SnapshotInvalidated()
	}
}

// Peek возвращает последний снапшот без сборки.
// stale = true, если он инвалидирован или истек.
func (c *Cache) Peek(key Key) (snap *Snapshot, stale bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.slots[key]
	if !ok || s.snapshot == nil {
		return nil, false
	}
	return s.snapshot, !c.fresh(s)
}

// Builds - сколько сборок было запущено
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}
