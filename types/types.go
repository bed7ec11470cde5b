package types

import (
	"context"
	"time"
)

type Session struct {
	ChatID     int64      `json:"chat_id"`
	UserID     int64      `json:"user_id"`
	Images     []ImageRef `json:"images"`
	Options    Options    `json:"options"`
	Generation uint64     `json:"generation"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TotalBytes is the cumulative size of all pending images.
func (s *Session) TotalBytes() int64 {
	var total int64
	for _, img := range s.Images {
		total += img.Size
	}
	return total
}

// Paths returns local image paths in arrival order.
func (s *Session) Paths() []string {
	out := make([]string, 0, len(s.Images))
	for _, img := range s.Images {
		if img.Path != "" {
			out = append(out, img.Path)
		}
	}
	return out
}

type ImageRef struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	Path     string `json:"path,omitempty"`
	Size     int64  `json:"size"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

type Options struct {
	PageSize  PageSize `json:"page_size"`
	MarginMM  int      `json:"margin_mm"`
	Rotation  int      `json:"rotation"`
	Scale     float64  `json:"scale"`
	Watermark string   `json:"watermark,omitempty"`
	OCR       bool     `json:"ocr"`
	Title     string   `json:"title,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		PageSize: PageSizeAuto,
		Scale:    1.0,
	}
}

type CatalogEntry struct {
	Slug       string `json:"-"`
	FileID     string `json:"file_id"`
	Title      string `json:"title"`
	UploaderID int64  `json:"uploader_id"`
	CreatedAt  int64  `json:"created_at"`
	Type       string `json:"type"`
}

type SessionRepository interface {
	Get(ctx context.Context, chatID int64) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, chatID int64) error
}
