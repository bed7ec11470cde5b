// Package session accumulates images and options per chat until a
// conversion is requested.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

const (
	MaxMarginMM    = 50
	MinScale       = 0.1
	MaxTextOptions = 64
)

type Limits struct {
	MaxImages       int
	MaxFileBytes    int64
	MaxSessionBytes int64
}

type Config struct {
	Limits            Limits
	Defaults          types.Options
	OCRAvailable      bool
	ClearAfterConvert bool
}

type Service struct {
	repo   types.SessionRepository
	blobs  *blob.Store
	cfg    Config
	locks  chatLocks
	logger zerolog.Logger
}

func NewService(repo types.SessionRepository, blobs *blob.Store, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Defaults.PageSize == "" {
		cfg.Defaults = types.DefaultOptions()
	}
	if cfg.Defaults.Scale <= 0 || cfg.Defaults.Scale > 1 {
		cfg.Defaults.Scale = 1
	}
	return &Service{
		repo:   repo,
		blobs:  blobs,
		cfg:    cfg,
		locks:  newChatLocks(),
		logger: logger.With().Str("component", "session").Logger(),
	}
}

func (s *Service) Limits() Limits {
	return s.cfg.Limits
}

func (s *Service) OCRAvailable() bool {
	return s.cfg.OCRAvailable
}

// Blobs exposes the per-chat blob scope used for downloaded images.
func (s *Service) Blobs() *blob.Store {
	return s.blobs
}

func (s *Service) newSession(chatID, userID int64) *types.Session {
	now := time.Now()
	return &types.Session{
		ChatID:    chatID,
		UserID:    userID,
		Options:   s.cfg.Defaults,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// load must be called with the chat lock held.
func (s *Service) load(ctx context.Context, chatID int64) (*types.Session, error) {
	sess, err := s.repo.Get(ctx, chatID)
	if errors.Is(err, types.ErrNotFound) {
		return s.newSession(chatID, 0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", chatID, err)
	}
	return sess, nil
}

func (s *Service) update(ctx context.Context, chatID int64, fn func(*types.Session) error) (*types.Session, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	sess, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.repo.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %d: %w", chatID, err)
	}
	return sess, nil
}

// Touch creates the session if needed and records the owning user.
func (s *Service) Touch(ctx context.Context, chatID, userID int64) (*types.Session, error) {
	return s.update(ctx, chatID, func(sess *types.Session) error {
		if userID != 0 {
			sess.UserID = userID
		}
		return nil
	})
}

// Get returns a snapshot. A chat without a session gets defaults.
func (s *Service) Get(ctx context.Context, chatID int64) (*types.Session, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()
	return s.load(ctx, chatID)
}

// CheckAdmission rejects an image before it is downloaded, using the size
// the platform declared (0 when unknown).
func (s *Service) CheckAdmission(ctx context.Context, chatID int64, declaredSize int64) error {
	sess, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}
	return s.admit(sess, declaredSize)
}

func (s *Service) admit(sess *types.Session, size int64) error {
	return admitWith(s.cfg.Limits, sess, size)
}

func admitWith(lim Limits, sess *types.Session, size int64) error {
	if lim.MaxImages > 0 && len(sess.Images) >= lim.MaxImages {
		return fmt.Errorf("%w: %d of %d", types.ErrCapacityExceeded, len(sess.Images), lim.MaxImages)
	}
	if lim.MaxFileBytes > 0 && size > lim.MaxFileBytes {
		return fmt.Errorf("%w: file is %d bytes, limit %d", types.ErrSizeExceeded, size, lim.MaxFileBytes)
	}
	if lim.MaxSessionBytes > 0 && sess.TotalBytes()+size > lim.MaxSessionBytes {
		return fmt.Errorf("%w: session would hold %d bytes, limit %d", types.ErrSizeExceeded, sess.TotalBytes()+size, lim.MaxSessionBytes)
	}
	return nil
}

// AddImage appends ref and returns the new count. ref.Size is the on-disk
// size; the larger of it and declaredSize is checked against the limits.
func (s *Service) AddImage(ctx context.Context, chatID int64, ref types.ImageRef, declaredSize int64) (int, error) {
	size := ref.Size
	if declaredSize > size {
		size = declaredSize
	}
	sess, err := s.update(ctx, chatID, func(sess *types.Session) error {
		if err := s.admit(sess, size); err != nil {
			return err
		}
		ref.Size = size
		sess.Images = append(sess.Images, ref)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(sess.Images), nil
}

// RemoveImage drops the n-th pending image (1-based) and its file and
// returns how many remain. n outside the batch gives ErrInvalidOption.
func (s *Service) RemoveImage(ctx context.Context, chatID int64, n int) (int, error) {
	var removed types.ImageRef
	sess, err := s.update(ctx, chatID, func(sess *types.Session) error {
		if n < 1 || n > len(sess.Images) {
			return fmt.Errorf("%w: image #%d of %d", types.ErrInvalidOption, n, len(sess.Images))
		}
		removed = sess.Images[n-1]
		sess.Images = append(sess.Images[:n-1:n-1], sess.Images[n:]...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if s.blobs != nil && removed.Path != "" {
		if err := s.blobs.RemoveSessionFiles(chatID, []string{removed.Path}); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("remove image file")
		}
	}
	return len(sess.Images), nil
}

func (s *Service) Options(ctx context.Context, chatID int64) (types.Options, error) {
	sess, err := s.Get(ctx, chatID)
	if err != nil {
		return types.Options{}, err
	}
	return sess.Options, nil
}

// SetOption parses value for key, clamps it and stores it. Setting the same
// value twice leaves the options unchanged.
func (s *Service) SetOption(ctx context.Context, chatID int64, key types.OptionKey, value string) (types.Options, error) {
	sess, err := s.update(ctx, chatID, func(sess *types.Session) error {
		return s.apply(&sess.Options, key, value)
	})
	if err != nil {
		return types.Options{}, err
	}
	return sess.Options, nil
}

func (s *Service) apply(opts *types.Options, key types.OptionKey, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case types.OptionPageSize:
		ps, ok := types.ParsePageSize(value)
		if !ok {
			return fmt.Errorf("%w: page size %q", types.ErrInvalidOption, value)
		}
		opts.PageSize = ps
	case types.OptionMargin:
		mm, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: margin %q", types.ErrInvalidOption, value)
		}
		opts.MarginMM = ClampMargin(mm)
	case types.OptionRotation:
		deg, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: rotation %q", types.ErrInvalidOption, value)
		}
		norm, ok := NormalizeRotation(deg)
		if !ok {
			return fmt.Errorf("%w: rotation must be a multiple of 90", types.ErrInvalidOption)
		}
		opts.Rotation = norm
	case types.OptionScale:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: scale %q", types.ErrInvalidOption, value)
		}
		opts.Scale = ClampScale(f)
	case types.OptionWatermark:
		if strings.EqualFold(value, "off") {
			value = ""
		}
		opts.Watermark = truncate(value, MaxTextOptions)
	case types.OptionOCR:
		var on bool
		switch strings.ToLower(value) {
		case "on", "true", "1", "yes":
			on = true
		case "off", "false", "0", "no":
			on = false
		case "toggle":
			on = !opts.OCR
		default:
			return fmt.Errorf("%w: ocr %q", types.ErrInvalidOption, value)
		}
		if on && !s.cfg.OCRAvailable {
			return fmt.Errorf("%w: text recognition is not installed", types.ErrUnavailable)
		}
		opts.OCR = on
	case types.OptionTitle:
		opts.Title = truncate(value, MaxTextOptions)
	default:
		return fmt.Errorf("%w: unknown option %q", types.ErrInvalidOption, key)
	}
	return nil
}

func ClampMargin(mm int) int {
	if mm < 0 {
		return 0
	}
	if mm > MaxMarginMM {
		return MaxMarginMM
	}
	return mm
}

func ClampScale(f float64) float64 {
	if f < MinScale {
		return MinScale
	}
	if f > 1 {
		return 1
	}
	return f
}

// NormalizeRotation maps any multiple of 90 into 0..270.
func NormalizeRotation(deg int) (int, bool) {
	if deg%90 != 0 {
		return 0, false
	}
	return ((deg % 360) + 360) % 360, true
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Clear drops pending images, removes their files and invalidates any
// conversion already running for the chat. Options are kept.
func (s *Service) Clear(ctx context.Context, chatID int64) error {
	_, err := s.update(ctx, chatID, func(sess *types.Session) error {
		s.clearLocked(sess)
		return nil
	})
	return err
}

func (s *Service) clearLocked(sess *types.Session) {
	sess.Images = nil
	sess.Generation++
	if s.blobs != nil {
		if err := s.blobs.ReleaseSession(sess.ChatID); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", sess.ChatID).Msg("release session files")
		}
	}
}

// Current reports whether a conversion started at generation gen is still
// wanted.
func (s *Service) Current(ctx context.Context, chatID int64, gen uint64) (bool, error) {
	sess, err := s.Get(ctx, chatID)
	if err != nil {
		return false, err
	}
	return sess.Generation == gen, nil
}

// CompleteConversion drops the first delivered images after a PDF was sent,
// when the bot is configured to do so and no /cancel or /new intervened.
// Images appended while the job ran stay pending.
func (s *Service) CompleteConversion(ctx context.Context, chatID int64, gen uint64, delivered int) error {
	if !s.cfg.ClearAfterConvert || delivered <= 0 {
		return nil
	}
	_, err := s.update(ctx, chatID, func(sess *types.Session) error {
		if sess.Generation != gen {
			return nil
		}
		if delivered >= len(sess.Images) {
			s.clearLocked(sess)
			return nil
		}
		done := sess.Images[:delivered]
		paths := make([]string, 0, len(done))
		for _, img := range done {
			paths = append(paths, img.Path)
		}
		sess.Images = append([]types.ImageRef(nil), sess.Images[delivered:]...)
		if s.blobs != nil {
			if err := s.blobs.RemoveSessionFiles(chatID, paths); err != nil {
				s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("remove delivered files")
			}
		}
		return nil
	})
	return err
}

// List reports how many images are pending and their cumulative size.
func (s *Service) List(ctx context.Context, chatID int64) (count int, total int64, err error) {
	sess, err := s.Get(ctx, chatID)
	if err != nil {
		return 0, 0, err
	}
	return len(sess.Images), sess.TotalBytes(), nil
}

// SweepOrphans removes session directories left behind by sessions the
// repository no longer knows, e.g. after a Redis TTL expired. Only
// directories untouched for olderThan are considered.
func (s *Service) SweepOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	if s.blobs == nil {
		return 0, nil
	}
	stale, err := s.blobs.StaleSessions(time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("list session dirs: %w", err)
	}
	removed := 0
	for _, chatID := range stale {
		unlock := s.locks.Lock(chatID)
		_, err := s.repo.Get(ctx, chatID)
		if errors.Is(err, types.ErrNotFound) {
			if rerr := s.blobs.ReleaseSession(chatID); rerr != nil {
				s.logger.Warn().Err(rerr).Int64("chat_id", chatID).Msg("release orphaned session files")
			} else {
				removed++
			}
		} else if err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("sweep: load session")
		}
		unlock()
	}
	return removed, nil
}

// RunSweeper calls SweepOrphans at start and then every interval until ctx
// is done.
func (s *Service) RunSweeper(ctx context.Context, interval, olderThan time.Duration) {
	sweep := func() {
		n, err := s.SweepOrphans(ctx, olderThan)
		if err != nil {
			s.logger.Warn().Err(err).Msg("sweep session dirs")
			return
		}
		if n > 0 {
			s.logger.Info().Int("removed", n).Msg("swept orphaned session dirs")
		}
	}
	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
