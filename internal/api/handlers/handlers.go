package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"face-identification/internal/models"
	"face-identification/internal/repository"
	"face-identification/internal/service/cache"
	"face-identification/internal/service/matcher"
	"face-identification/internal/service/recognition"

	"github.com/gin-gonic/gin"
)

// Максимальный размер загружаемого фото
const maxUploadBytes = 20 << 20

// Recognizer - сервис распознавания
type Recognizer interface {
	Identify(ctx context.Context, data []byte) (*models.IdentifyResponse, error)
	Refresh()
	Status() (models.SnapshotInfo, bool)
}

// Handler содержит все зависимости для обработки HTTP запросов
type Handler struct {
	repo       repository.RepositoryInterface
	recognizer Recognizer
	cache      *cache.Service
}

// NewHandler создает новый handler с зависимостями.
// cache может быть nil - тогда статистика всегда читается из БД.
func NewHandler(
	repo repository.RepositoryInterface,
	recognizer Recognizer,
	cache *cache.Service,
) *Handler {
	return &Handler{
		repo:       repo,
		recognizer: recognizer,
		cache:      cache,
	}
}

// ============ UPLOAD ============

// HandleUpload распознает людей на загруженном фото (поле "image")
func (h *Handler) HandleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Файл не загружен",
			Code:  models.CodeMalformedInput,
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Ошибка чтения файла",
			Code:  models.CodeMalformedInput,
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil || len(data) > maxUploadBytes {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Файл слишком большой или поврежден",
			Code:  models.CodeMalformedInput,
		})
		return
	}

	resp, err := h.recognizer.Identify(c.Request.Context(), data)
	if err != nil {
		status, body := identifyError(err)
		if status == http.StatusInternalServerError || status == http.StatusBadGateway {
			log.Printf("❌ Ошибка распознавания: %v", err)
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// identifyError переводит ошибку распознавания в HTTP ответ
func identifyError(err error) (int, models.ErrorResponse) {
	switch {
	case errors.Is(err, recognition.ErrMalformedInput):
		return http.StatusBadRequest, models.ErrorResponse{Error: "Файл не является изображением", Code: models.CodeMalformedInput}
	case errors.Is(err, matcher.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity, models.ErrorResponse{Error: "Лица на фото не найдены", Code: models.CodeNoFaceDetected}
	case errors.Is(err, matcher.ErrNoKnownSubjects):
		return http.StatusNotFound, models.ErrorResponse{Error: "Нет известных людей для сравнения", Code: models.CodeNoKnownSubjects}
	case errors.Is(err, recognition.ErrExtractorFailed):
		return http.StatusBadGateway, models.ErrorResponse{Error: "Python сервер не смог обработать фото", Code: models.CodeExtractorFailed}
	case errors.Is(err, matcher.ErrDimensionMismatch):
		return http.StatusInternalServerError, models.ErrorResponse{Error: "Размерность embedding не совпадает", Code: models.CodeDimensionMismatch}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{Error: err.Error(), Code: models.CodeInternal}
	}
}

// ============ SNAPSHOT ============

// HandleRefresh сбрасывает снапшот, следующий запрос соберет его заново
func (h *Handler) HandleRefresh(c *gin.Context) {
	h.recognizer.Refresh()

	if h.cache != nil {
		h.cache.InvalidateStats()
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Снапшот будет пересобран при следующем запросе",
	})
}

// HandleSnapshot возвращает состояние снапшота (без пересборки)
func (h *Handler) HandleSnapshot(c *gin.Context) {
	info, ok := h.recognizer.Status()
	c.JSON(http.StatusOK, gin.H{
		"loaded":   ok,
		"snapshot": info,
	})
}

// ============ SUBJECTS ============

// HandleGetSubjects возвращает страницу субъектов (limit, offset)
func (h *Handler) HandleGetSubjects(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Неверный limit",
		})
		return
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Неверный offset",
		})
		return
	}

	subjects, err := h.repo.ListSubjects(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, subjectInfos(subjects))
}

// HandleGetSubject возвращает одного субъекта
func (h *Handler) HandleGetSubject(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Неверный ID",
		})
		return
	}

	subject, err := h.repo.GetSubjectByID(c.Request.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Человек не найден",
		})
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, subject.Info())
}

// ============ SEARCH ============

// HandleSearch ищет людей по имени, ID или номеру документа
func (h *Handler) HandleSearch(c *gin.Context) {
	query := c.Query("q")

	if query == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Параметр q обязателен",
		})
		return
	}

	subjects, err := h.repo.SearchSubjects(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, subjectInfos(subjects))
}

func subjectInfos(subjects []models.Subject) []models.SubjectInfo {
	infos := make([]models.SubjectInfo, 0, len(subjects))
	for i := range subjects {
		infos = append(infos, subjects[i].Info())
	}
	return infos
}

// ============ STATS ============

// HandleGetStats возвращает общую статистику.
// В Redis кэшируется только число субъектов из БД, состояние снапшота
// читается при каждом запросе.
func (h *Handler) HandleGetStats(c *gin.Context) {
	var stats *models.Stats

	// Пробуем из кэша
	if h.cache != nil {
		if cached, err := h.cache.GetStats(); err == nil && cached != nil {
			stats = &models.Stats{TotalSubjects: cached.TotalSubjects}
		}
	}

	// Из БД
	if stats == nil {
		total, err := h.repo.CountSubjects(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: err.Error(),
			})
			return
		}
		stats = &models.Stats{TotalSubjects: total}

		// Сохраняем в кэш
		if h.cache != nil {
			h.cache.SetStats(stats)
		}
	}

	if info, ok := h.recognizer.Status(); ok {
		stats.LoadedSubjects = info.Entries
		stats.SnapshotBuiltAt = info.BuiltAt
	}

	c.JSON(http.StatusOK, stats)
}
