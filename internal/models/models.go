package models

import (
	"database/sql"
	"time"
)

// Subject - зарегистрированный человек из базы (запись источника)
type Subject struct {
	ID         int            `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	ImageURL   string         `db:"image_url" json:"image_url"`
	NationalID sql.NullString `db:"national_id" json:"-"` // Номер паспорта / CPF
	DocumentID sql.NullString `db:"document_id" json:"-"` // Второй документ (RG)
	MotherName sql.NullString `db:"mother_name" json:"-"`
	FatherName sql.NullString `db:"father_name" json:"-"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Info возвращает публичные поля субъекта для ответов API
func (s *Subject) Info() SubjectInfo {
	return SubjectInfo{
		ID:         s.ID,
		Name:       s.Name,
		ImageURL:   s.ImageURL,
		NationalID: s.NationalID.String,
		DocumentID: s.DocumentID.String,
		MotherName: s.MotherName.String,
		FatherName: s.FatherName.String,
	}
}

// SubjectInfo - поля субъекта без sql.Null* обёрток
type SubjectInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	NationalID string `json:"national_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	MotherName string `json:"mother_name,omitempty"`
	FatherName string `json:"father_name,omitempty"`
}

// Embedding - вектор признаков лица фиксированной длины
type Embedding []float64

// Box - координаты лица на изображении (top, right, bottom, left)
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// DetectedFace - одно найденное лицо: рамка + embedding
type DetectedFace struct {
	Box       Box       `json:"box"`
	Embedding Embedding `json:"embedding"`
}

// MatchStatus - результат сравнения лица с известными
type MatchStatus string

const (
	StatusKnown   MatchStatus = "known"
	StatusUnknown MatchStatus = "unknown"
)

// UnknownName - имя для неопознанных лиц
const UnknownName = "Unknown"

// MatchResult - результат для одного лица на запросе
type MatchResult struct {
	Status   MatchStatus  `json:"status"`
	Name     string       `json:"name"`
	Subject  *SubjectInfo `json:"subject,omitempty"` // Только для known
	Distance float64      `json:"distance"`
	Box      *Box         `json:"box,omitempty"`
}

// IdentifyResponse - ответ на загрузку фото
type IdentifyResponse struct {
	RequestID string        `json:"request_id"`
	Results   []MatchResult `json:"results"`
	Degraded  bool          `json:"degraded,omitempty"` // Снапшот устарел, источник недоступен
	BuiltAt   time.Time     `json:"snapshot_built_at"`
}

// SnapshotInfo - состояние снапшота для API
type SnapshotInfo struct {
	PageSize   int       `json:"page_size"`
	PageNumber int       `json:"page_number"`
	Entries    int       `json:"entries"`
	BuiltAt    time.Time `json:"built_at"`
	Stale      bool      `json:"stale"`
}

// Stats - общая статистика системы
type Stats struct {
	TotalSubjects   int       `json:"total_subjects"`
	LoadedSubjects  int       `json:"loaded_subjects"`
	SnapshotBuiltAt time.Time `json:"snapshot_built_at,omitempty"`
}

// ErrorResponse - стандартный ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Коды ошибок в ответах
const (
	CodeMalformedInput    = "malformed_input"
	CodeNoFaceDetected    = "no_face_detected"
	CodeNoKnownSubjects   = "no_known_subjects"
	CodeExtractorFailed   = "extractor_failed"
	CodeDimensionMismatch = "dimension_mismatch"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
)

// PythonFace - лицо в ответе Python сервера
type PythonFace struct {
	Box      []int     `json:"box"`      // [top, right, bottom, left]
	Encoding []float64 `json:"encoding"` // 128-мерный вектор
}

// PythonResponse - ответ от Python сервера на /encode
type PythonResponse struct {
	Success bool         `json:"success"`
	Faces   []PythonFace `json:"faces"`
	Error   string       `json:"error,omitempty"`
}
