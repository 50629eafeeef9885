package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Python      PythonConfig
	Redis       RedisConfig
	Assets      AssetsConfig
	Recognition RecognitionConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            string
	Host            string
	UploadRateLimit float64 // Запросов в секунду на /api/upload, 0 - без ограничения
	UploadBurst     int
	CORSOrigin      string // "*" - любой origin без credentials
}

// DatabaseConfig - настройки базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PythonConfig - настройки Python сервера (извлечение embeddings)
type PythonConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RedisConfig - настройки Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AssetsConfig - загрузка эталонных фото
type AssetsConfig struct {
	Dir          string        // Локальная папка для относительных ссылок
	FetchTimeout time.Duration // Таймаут на одну загрузку
	MaxBytes     int64
}

// RecognitionConfig - параметры снапшота и сравнения
type RecognitionConfig struct {
	Threshold       float64
	PageSize        int
	PageNumber      int
	RefreshInterval time.Duration // Периодическая инвалидация снапшота
	MaxAge          time.Duration // 0 - без TTL
	BuildWorkers    int
	MaxImageSide    int
	MaxPixels       int // Предел width*height до декодирования
}

// Load загружает конфигурацию из переменных окружения
// с fallback на значения по умолчанию. Файл .env опционален.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			UploadRateLimit: getEnvFloat("UPLOAD_RATE_LIMIT", 5),
			UploadBurst:     getEnvInt("UPLOAD_RATE_BURST", 10),
			CORSOrigin:      getEnv("CORS_ALLOW_ORIGIN", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "faceuser"),
			Password: getEnv("DB_PASSWORD", "facepass"),
			DBName:   getEnv("DB_NAME", "facedb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Python: PythonConfig{
			BaseURL: getEnv("PYTHON_BASE_URL", "http://localhost:5000"),
			Timeout: getEnvDuration("PYTHON_TIMEOUT", time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Assets: AssetsConfig{
			Dir:          getEnv("ASSETS_DIR", "assets"),
			FetchTimeout: getEnvDuration("ASSET_FETCH_TIMEOUT", 10*time.Second),
			MaxBytes:     int64(getEnvInt("ASSET_MAX_BYTES", 20<<20)),
		},
		Recognition: RecognitionConfig{
			Threshold:       getEnvFloat("MATCH_THRESHOLD", 0.5),
			PageSize:        getEnvInt("SNAPSHOT_PAGE_SIZE", 100),
			PageNumber:      getEnvInt("SNAPSHOT_PAGE_NUMBER", 0),
			RefreshInterval: getEnvDuration("SNAPSHOT_REFRESH_INTERVAL", time.Hour),
			MaxAge:          getEnvDuration("SNAPSHOT_MAX_AGE", 0),
			BuildWorkers:    getEnvInt("SNAPSHOT_BUILD_WORKERS", 4),
			MaxImageSide:    getEnvInt("IMAGE_MAX_SIDE", 1600),
			MaxPixels:       getEnvInt("IMAGE_MAX_PIXELS", 40_000_000),
		},
	}
}

// GetDSN возвращает строку подключения к PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration понимает "10s", "1h" и т.п.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
