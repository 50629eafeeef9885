package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"face-identification/internal/api/handlers"
	"face-identification/internal/api/middleware"
	"face-identification/internal/api/websocket"
	"face-identification/internal/config"
	"face-identification/internal/repository"
	"face-identification/internal/service/assets"
	"face-identification/internal/service/cache"
	"face-identification/internal/service/matcher"
	"face-identification/internal/service/metrics"
	"face-identification/internal/service/recognition"
	"face-identification/internal/service/scheduler"
	"face-identification/internal/service/snapshot"
	"face-identification/pkg/python_client"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	// ASCII баннер
	printBanner()

	// Загружаем конфигурацию
	cfg := config.Load()
	log.Println("✅ Конфигурация загружена")

	// Инициализируем базу данных
	db, err := initDatabase(cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("❌ Ошибка подключения к БД: %v\n", err)
	}
	defer db.Close()
	log.Println("✅ База данных подключена")

	// Инициализируем Redis кэш
	var cacheService *cache.Service
	cacheService, err = cache.NewService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("⚠️  Redis недоступен (работаем без кэша): %v\n", err)
		cacheService = nil
	} else {
		defer cacheService.Close()
		log.Println("✅ Redis кэш подключен")
	}

	// Инициализируем репозиторий
	repo := repository.NewRepository(db)

	// Загрузка эталонных фото
	assetService, err := assets.NewService(cfg.Assets.Dir, cfg.Assets.FetchTimeout, cfg.Assets.MaxBytes)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации assets: %v\n", err)
	}
	log.Println("✅ Assets сервис инициализирован")

	// Инициализируем Python client
	pythonClient := python_client.NewClient(cfg.Python.BaseURL, cfg.Python.Timeout)

	// Проверяем доступность Python сервера
	if err := pythonClient.HealthCheck(); err != nil {
		log.Printf("⚠️  Предупреждение: Python сервер недоступен: %v\n", err)
		log.Println("💡 Запусти: cd python && python server.py")
	} else {
		log.Println("✅ Python сервер доступен")
	}

	// Инициализируем WebSocket manager
	wsManager := websocket.NewManager()
	go wsManager.Run() // Запускаем в отдельной горутине
	log.Println("✅ WebSocket manager запущен")

	// Сборщик снапшотов
	builderOpts := []snapshot.BuilderOption{
		snapshot.WithWorkers(cfg.Recognition.BuildWorkers),
		snapshot.WithFetchTimeout(cfg.Assets.FetchTimeout),
		snapshot.WithMaxImageSide(cfg.Recognition.MaxImageSide),
		snapshot.WithMaxPixels(cfg.Recognition.MaxPixels),
	}
	// Передаем только живой кэш, иначе интерфейс будет хранить nil указатель
	if cacheService != nil {
		builderOpts = append(builderOpts, snapshot.WithEmbeddingCache(cacheService))
	}
	builder := snapshot.NewBuilder(repo, assetService, pythonClient, builderOpts...)

	// Метрики Prometheus
	collector := metrics.NewCollector()

	snapshots := snapshot.NewCache(builder,
		snapshot.WithMaxAge(cfg.Recognition.MaxAge),
		snapshot.WithObserver(wsManager),
		snapshot.WithObserver(collector),
	)

	key := snapshot.Key{
		PageSize:   cfg.Recognition.PageSize,
		PageNumber: cfg.Recognition.PageNumber,
	}
	recognizer := recognition.NewService(
		pythonClient,
		snapshots,
		matcher.New(cfg.Recognition.Threshold),
		key,
		cfg.Recognition.MaxImageSide,
		cfg.Recognition.MaxPixels,
	)
	recognizer.AddNotifier(wsManager)
	recognizer.AddNotifier(collector)
	log.Printf("✅ Распознавание: страница %s, порог %.2f", key, cfg.Recognition.Threshold)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Периодическая инвалидация снапшота
	go scheduler.NewTicker(cfg.Recognition.RefreshInterval, snapshots).Run(ctx)

	// Инициализируем handlers
	handler := handlers.NewHandler(repo, recognizer, cacheService)

	// Создаем роутер
	router := setupRouter(handler, wsManager, pythonClient, collector, cfg)

	// Запускаем сервер
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Ошибка запуска сервера: %v\n", err)
		}
	}()

	log.Println("🎉 Сервер успешно запущен!")
	log.Printf("📡 API: http://localhost:%s/api\n", cfg.Server.Port)
	log.Printf("🔌 WebSocket: ws://localhost:%s/ws\n", cfg.Server.Port)
	log.Printf("📊 Метрики: http://localhost:%s/metrics\n", cfg.Server.Port)
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	<-ctx.Done()
	log.Println("🛑 Остановка сервера...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Ошибка остановки сервера: %v\n", err)
	}
	log.Println("👋 Сервер остановлен")
}

// initDatabase инициализирует подключение к базе данных
func initDatabase(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Проверяем подключение
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Настраиваем connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// setupRouter настраивает роутер с middleware и endpoints
func setupRouter(
	handler *handlers.Handler,
	wsManager *websocket.Manager,
	pythonClient *python_client.Client,
	collector *metrics.Collector,
	cfg *config.Config,
) *gin.Engine {
	router := gin.Default()

	// Middleware
	router.Use(middleware.CORS(cfg.Server.CORSOrigin))
	router.Use(middleware.Recovery())

	// WebSocket endpoint (?topic=snapshot|matches)
	wsHandler := websocket.NewHandler(wsManager)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// API группа
	api := router.Group("/api")
	{
		// Распознавание
		// Ограничение частоты загрузок
		api.POST("/upload", middleware.RateLimit(cfg.Server.UploadRateLimit, cfg.Server.UploadBurst), handler.HandleUpload)

		// Снапшот
		api.GET("/snapshot", handler.HandleSnapshot)
		api.POST("/refresh", handler.HandleRefresh)

		// Субъекты
		api.GET("/subjects", handler.HandleGetSubjects)
		api.GET("/subjects/:id", handler.HandleGetSubject)

		// Поиск
		api.GET("/search", handler.HandleSearch)

		// Статистика
		api.GET("/stats", handler.HandleGetStats)
	}

	// Prometheus
	router.GET("/metrics", gin.WrapH(collector.Handler()))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		extractor := "ok"
		if err := pythonClient.HealthCheck(); err != nil {
			extractor = "unavailable"
		}

		c.JSON(200, gin.H{
			"status":     "ok",
			"service":    "face-identification-api",
			"version":    "1.0.0",
			"extractor":  extractor,
			"ws_clients": wsManager.ClientCount(),
		})
	})

	return router
}

// printBanner печатает баннер при старте
func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   🎭  FACE IDENTIFICATION SERVICE                    ║
║                                                       ║
║   Опознание людей по фото                            ║
║   по базе зарегистрированных лиц                     ║
║                                                       ║
║   Версия: 1.0.0                                      ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	log.Println("🚀 Инициализация сервисов...")
}
