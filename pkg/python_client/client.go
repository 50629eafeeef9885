package python_client

import (
	"bytes"
	"context"
	"encoding/json"
	"face-identification/internal/models"
	"face-identification/internal/service/imaging"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client для взаимодействия с Python сервером (face_recognition)
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создает новый клиент
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ExtractFaces отправляет изображение на /encode.
// Python делает: детекцию → embedding для каждого лица.
// Пустой список лиц - нормальный результат, не ошибка.
func (c *Client) ExtractFaces(ctx context.Context, img image.Image) ([]models.DetectedFace, error) {
	// Python ждет трехканальный RGB, JPEG это гарантирует
	data, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	// Создаем multipart форму
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("ошибка записи изображения: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/encode", body)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка HTTP запроса: %w", err)
	}
	defer resp.Body.Close()

	// Проверяем статус код
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Python вернул ошибку %d: %s", resp.StatusCode, string(bodyBytes))
	}

	// Парсим ответ
	var result models.PythonResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	// Проверяем успешность обработки
	if !result.Success {
		return nil, fmt.Errorf("Python обработка не удалась: %s", result.Error)
	}

	faces := make([]models.DetectedFace, 0, len(result.Faces))
	for _, f := range result.Faces {
		if len(f.Encoding) == 0 {
			continue
		}
		face := models.DetectedFace{Embedding: f.Encoding}
		// box от Python: [top, right, bottom, left]
		if len(f.Box) == 4 {
			face.Box = models.Box{Top: f.Box[0], Right: f.Box[1], Bottom: f.Box[2], Left: f.Box[3]}
		}
		faces = append(faces, face)
	}

	return faces, nil
}

// HealthCheck проверяет доступность Python сервера
func (c *Client) HealthCheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("Python сервер недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Python сервер вернул статус %d", resp.StatusCode)
	}

	return nil
}
