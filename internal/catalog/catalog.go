// Package catalog records every delivered PDF under a short slug so it can be
// found and re-sent later.
package catalog

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

const (
	MaxTitleRunes  = 64
	maxSlugBase    = 32
	DefaultTitle   = "document"
	slugAttempts   = 3
	DefaultListLen = 10
	MaxListLen     = 50
)

// Backend persists catalog entries. Implementations return types.ErrNotFound
// for unknown slugs and types.ErrSlugTaken when Insert would overwrite.
type Backend interface {
	Insert(ctx context.Context, e types.CatalogEntry) error
	Get(ctx context.Context, slug string) (types.CatalogEntry, error)
	Find(ctx context.Context, query string, limit int) ([]types.CatalogEntry, error)
	// Recent lists newest first; uploaderID 0 means everyone.
	Recent(ctx context.Context, uploaderID int64, limit int) ([]types.CatalogEntry, error)
	UpdateTitle(ctx context.Context, slug, title string) error
	Delete(ctx context.Context, slug string) error
}

type Service struct {
	mu      sync.Mutex
	backend Backend
	isAdmin func(userID int64) bool
	now     func() time.Time
	logger  zerolog.Logger
}

func NewService(backend Backend, isAdmin func(int64) bool, logger zerolog.Logger) *Service {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Service{
		backend: backend,
		isAdmin: isAdmin,
		now:     time.Now,
		logger:  logger.With().Str("component", "catalog").Logger(),
	}
}

func observe(op string, err error) {
	result := metrics.Result(err)
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrUnauthorized) {
		result = "rejected"
	}
	metrics.CatalogOpsTotal.WithLabelValues(op, result).Inc()
}

// Put stores a new entry and returns its slug. A slug collision is retried
// with a fresh salt rather than overwriting the existing entry.
func (s *Service) Put(ctx context.Context, title, fileID string, uploaderID int64) (slug string, err error) {
	defer func() { observe("put", err) }()

	title = CleanTitle(title)
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < slugAttempts; attempt++ {
		now := s.now()
		slug = MakeSlug(title, now)
		err = s.backend.Insert(ctx, types.CatalogEntry{
			Slug:       slug,
			FileID:     fileID,
			Title:      title,
			UploaderID: uploaderID,
			CreatedAt:  now.Unix(),
			Type:       types.EntryTypePDF,
		})
		if !errors.Is(err, types.ErrSlugTaken) {
			break
		}
		s.logger.Warn().Str("slug", slug).Msg("slug collision, re-salting")
	}
	if err != nil {
		return "", fmt.Errorf("catalog put: %w", err)
	}
	return slug, nil
}

func (s *Service) Get(ctx context.Context, slug string) (e types.CatalogEntry, err error) {
	defer func() { observe("get", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Get(ctx, strings.TrimSpace(slug))
}

// Find matches query case-insensitively against slug or title.
func (s *Service) Find(ctx context.Context, query string, limit int) (out []types.CatalogEntry, err error) {
	defer func() { observe("find", err) }()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrInvalidOption)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Find(ctx, query, ClampLimit(limit))
}

func (s *Service) Recent(ctx context.Context, n int) (out []types.CatalogEntry, err error) {
	defer func() { observe("recent", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Recent(ctx, 0, ClampLimit(n))
}

func (s *Service) ByUploader(ctx context.Context, uploaderID int64, n int) (out []types.CatalogEntry, err error) {
	defer func() { observe("by_uploader", err) }()
	if uploaderID == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Recent(ctx, uploaderID, ClampLimit(n))
}

// Rename is allowed to the uploader and to admins.
func (s *Service) Rename(ctx context.Context, slug, newTitle string, requesterID int64) (title string, err error) {
	defer func() { observe("rename", err) }()
	title = truncate(strings.TrimSpace(newTitle), MaxTitleRunes)
	if title == "" {
		return "", fmt.Errorf("%w: empty title", types.ErrInvalidOption)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.backend.Get(ctx, slug)
	if err != nil {
		return "", err
	}
	if e.UploaderID != requesterID && !s.isAdmin(requesterID) {
		return "", fmt.Errorf("%w: rename %s", types.ErrUnauthorized, slug)
	}
	if err := s.backend.UpdateTitle(ctx, slug, title); err != nil {
		return "", err
	}
	return title, nil
}

// Delete is admin-only.
func (s *Service) Delete(ctx context.Context, slug string, requesterID int64) (err error) {
	defer func() { observe("delete", err) }()
	if !s.isAdmin(requesterID) {
		return fmt.Errorf("%w: delete %s", types.ErrUnauthorized, slug)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Delete(ctx, slug)
}

func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultListLen
	}
	if n > MaxListLen {
		return MaxListLen
	}
	return n
}

// CleanTitle trims and truncates; an empty title becomes DefaultTitle.
func CleanTitle(title string) string {
	title = truncate(strings.TrimSpace(title), MaxTitleRunes)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// MakeSlug joins a normalized title with six hex characters of
// sha1(title + unix nanos).
func MakeSlug(title string, at time.Time) string {
	sum := sha1.Sum([]byte(title + strconv.FormatInt(at.UnixNano(), 10)))
	return normalize(title) + "_" + hex.EncodeToString(sum[:])[:6]
}

// normalize lowercases, turns whitespace into underscores and drops anything
// that would not survive as a command argument.
func normalize(title string) string {
	var b strings.Builder
	lastUnderscore := true
	n := 0
	for _, r := range strings.ToLower(title) {
		if n >= maxSlugBase {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
			n++
		case unicode.IsSpace(r) || r == '_' || r == '-':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
				n++
			}
		}
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return DefaultTitle
	}
	return out
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
