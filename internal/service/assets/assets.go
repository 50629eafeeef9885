package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrFetchFailed - не удалось получить изображение по ссылке
var ErrFetchFailed = errors.New("не удалось загрузить изображение")

// Service загружает эталонные фото: по http(s) или из локальной папки
type Service struct {
	baseDir    string
	timeout    time.Duration
	maxBytes   int64
	httpClient *http.Client
}

// NewService создает сервис загрузки
// timeout применяется к каждой загрузке отдельно
func NewService(baseDir string, timeout time.Duration, maxBytes int64) (*Service, error) {
	// Создаем директорию если ее нет
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать %s: %w", baseDir, err)
	}

	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить путь %s: %w", baseDir, err)
	}

	return &Service{
		baseDir:    absDir,
		timeout:    timeout,
		maxBytes:   maxBytes,
		httpClient: &http.Client{},
	}, nil
}

// Fetch возвращает байты изображения по ссылке.
// Любая ошибка оборачивается в ErrFetchFailed.
func (s *Service) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, err = s.fetchHTTP(ctx, ref)
	default:
		data, err = s.readLocal(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetchFailed, ref, err)
	}
	return data, nil
}

func (s *Service) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("статус %d", resp.StatusCode)
	}

	return s.readLimited(resp.Body)
}

// readLocal читает файл только внутри baseDir
func (s *Service) readLocal(ref string) ([]byte, error) {
	ref = strings.TrimPrefix(ref, "file://")
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("путь вне %s", s.baseDir)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return s.readLimited(file)
}

func (s *Service) readLimited(r io.Reader) ([]byte, error) {
	if s.maxBytes <= 0 {
		return io.ReadAll(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("файл больше %d байт", s.maxBytes)
	}
	return data, nil
}
