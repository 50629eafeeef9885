package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"face-identification/internal/models"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service управляет кэшированием через Redis
type Service struct {
	client *redis.Client
	ctx    context.Context
}

// NewService создает новый cache service
func NewService(addr, password string, db int) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return &Service{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close закрывает соединение с Redis
func (s *Service) Close() error {
	return s.client.Close()
}

// Digest - ключ эталонного фото по содержимому.
// Одинаковые байты дают одинаковый embedding, поэтому URL в ключ не входит.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ============ EMBEDDINGS CACHE ============

// GetEmbedding получает embedding по digest изображения
// (nil, nil) - нет в кэше
func (s *Service) GetEmbedding(digest string) (models.Embedding, error) {
	key := fmt.Sprintf("embedding:%s", digest)

	data, err := s.client.Get(s.ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var embedding models.Embedding
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, err
	}

	return embedding, nil
}

// SetEmbedding сохраняет embedding в кэш на 7 дней
func (s *Service) SetEmbedding(digest string, embedding models.Embedding) error {
	key := fmt.Sprintf("embedding:%s", digest)

	data, err := json.Marshal(embedding)
	if err != nil {
		return err
	}

	return s.client.Set(s.ctx, key, data, 7*24*time.Hour).Err()
}

// ============ STATS CACHE ============

// GetStats получает статистику из кэша
func (s *Service) GetStats() (*models.Stats, error) {
	data, err := s.client.Get(s.ctx, "stats").Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats models.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

// SetStats сохраняет статистику в кэш на 5 минут
func (s *Service) SetStats(stats *models.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	return s.client.Set(s.ctx, "stats", data, 5*time.Minute).Err()
}

// InvalidateStats очищает кэш статистики
func (s *Service) InvalidateStats() error {
	return s.client.Del(s.ctx, "stats").Err()
}
