package scheduler

import (
	"context"
	"log"
	"time"
)

// Invalidator - то, что сбрасывается по таймеру (кэш снапшотов)
type Invalidator interface {
	Invalidate()
}

// Ticker вызывает Invalidate каждые interval
type Ticker struct {
	interval time.Duration
	target   Invalidator
}

// NewTicker создает периодический триггер
func NewTicker(interval time.Duration, target Invalidator) *Ticker {
	return &Ticker{interval: interval, target: target}
}

// Run блокируется до отмены ctx (запускать в отдельной горутине).
// interval <= 0 отключает периодическую инвалидацию.
func (t *Ticker) Run(ctx context.Context) {
	if t.interval <= 0 {
		log.Println("⚠️  Периодическое обновление снапшота отключено")
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Printf("⏰ Снапшот будет обновляться каждые %s", t.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.OnTick()
		}
	}
}

// OnTick - одно срабатывание, можно вызывать вручную
func (t *Ticker) OnTick() {
	t.target.Invalidate()
}
