package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BatmanBruc/pdf-batch-bot/internal/converter"
	"github.com/BatmanBruc/pdf-batch-bot/internal/messages"
	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

var (
	ErrAlreadyQueued = errors.New("conversion already queued for this chat")
	ErrQueueFull     = errors.New("conversion queue is full")
	ErrStopped       = errors.New("scheduler is not running")
)

// Sender is the part of *bot.Bot the workers talk to.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

type Sessions interface {
	Get(ctx context.Context, chatID int64) (*types.Session, error)
	Current(ctx context.Context, chatID int64, gen uint64) (bool, error)
	CompleteConversion(ctx context.Context, chatID int64, gen uint64, delivered int) error
}

type Catalog interface {
	Put(ctx context.Context, title, fileID string, uploaderID int64) (string, error)
}

type Limiter interface {
	Wait(ctx context.Context) error
}

type Config struct {
	Workers   int
	QueueSize int
	// JobTimeout bounds one conversion including delivery.
	JobTimeout time.Duration
	// UploadTimeout applies to each SendDocument attempt.
	UploadTimeout time.Duration
	// UploadRetries is the number of extra attempts after a failed upload.
	UploadRetries int
}

type Scheduler struct {
	sessions  Sessions
	converter converter.Converter
	catalog   Catalog
	sender    Sender
	limiter   Limiter
	logger    zerolog.Logger

	workers       int
	jobTimeout    time.Duration
	uploadTimeout time.Duration
	uploadRetries int
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
	queue         chan *Job

	inFlight   map[int64]*inFlightEntry
	inFlightMu sync.Mutex
}

// Job is a snapshot of a session taken when /convert was accepted.
type Job struct {
	ID         string
	ChatID     int64
	UserID     int64
	Generation uint64
	Images     []string
	// Taken is how many session refs the snapshot covered.
	Taken      int
	Options    types.Options
	FileName   string
}

type inFlightEntry struct {
	jobID     string
	messageID int
	position  int
	fileName  string
	pages     int
}

// NewScheduler wires the workers. catalog and limiter may be nil.
func NewScheduler(sessions Sessions, conv converter.Converter, catalog Catalog, sender Sender, limiter Limiter, config Config, logger zerolog.Logger) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = 3
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * 2
		if config.QueueSize < 10 {
			config.QueueSize = 10
		}
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 10 * time.Minute
	}
	if config.UploadTimeout <= 0 {
		config.UploadTimeout = 2 * time.Minute
	}
	if config.UploadRetries < 0 {
		config.UploadRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sessions:      sessions,
		converter:     conv,
		catalog:       catalog,
		sender:        sender,
		limiter:       limiter,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		workers:       config.Workers,
		jobTimeout:    config.JobTimeout,
		uploadTimeout: config.UploadTimeout,
		uploadRetries: config.UploadRetries,
		ctx:           ctx,
		cancel:        cancel,
		queue:         make(chan *Job, config.QueueSize),
		inFlight:      make(map[int64]*inFlightEntry),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Int("workers", s.workers).Msg("scheduler started")
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("stopping scheduler")
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// ResultName is the delivered file name: the session title when set,
// otherwise images_<n>.pdf.
func ResultName(title string, pages int) string {
	name := unsafeName.ReplaceAllString(strings.TrimSpace(title), "_")
	name = strings.Trim(name, "._ ")
	if name == "" {
		return fmt.Sprintf("images_%d.pdf", pages)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

var unsafeName = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]+`)

// Submit snapshots the chat's session and queues it. The returned position
// is 0 when a worker is free, otherwise the place in line.
func (s *Scheduler) Submit(ctx context.Context, chatID, userID int64) (int, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return 0, ErrStopped
	}

	sess, err := s.sessions.Get(ctx, chatID)
	if err != nil {
		return 0, err
	}
	images := sess.Paths()
	if len(images) == 0 {
		return 0, types.ErrNoImages
	}
	if userID == 0 {
		userID = sess.UserID
	}
	job := &Job{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		UserID:     userID,
		Generation: sess.Generation,
		Images:     images,
		Taken:      len(sess.Images),
		Options:    sess.Options,
		FileName:   ResultName(sess.Options.Title, len(images)),
	}

	position, err := s.register(job)
	if err != nil {
		return 0, err
	}

	text := messages.QueueStarted(job.FileName, len(job.Images))
	if position > 0 {
		text = messages.QueueQueued(job.FileName, position)
	}
	if msg, err := s.sendMessage(ctx, chatID, text); err == nil && msg != nil {
		s.inFlightMu.Lock()
		if e := s.inFlight[chatID]; e != nil && e.jobID == job.ID {
			e.messageID = msg.ID
		}
		s.inFlightMu.Unlock()
	}

	select {
	case s.queue <- job:
		metrics.QueueDepth.Inc()
	default:
		s.finish(job)
		return 0, ErrQueueFull
	}

	s.logger.Info().Str("job_id", job.ID).Int64("chat_id", chatID).Int("images", len(images)).Int("position", position).Msg("conversion queued")
	return position, nil
}

func (s *Scheduler) register(job *Job) (int, error) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()

	if _, exists := s.inFlight[job.ChatID]; exists {
		return 0, ErrAlreadyQueued
	}

	running := 0
	maxPos := 0
	for _, e := range s.inFlight {
		if e.position == 0 {
			running++
			continue
		}
		if e.position > maxPos {
			maxPos = e.position
		}
	}
	position := 0
	if running >= s.workers {
		position = maxPos + 1
	}

	s.inFlight[job.ChatID] = &inFlightEntry{
		jobID:    job.ID,
		position: position,
		fileName: job.FileName,
		pages:    len(job.Images),
	}
	return position, nil
}

// InFlight reports whether chatID has a queued or running job.
func (s *Scheduler) InFlight(chatID int64) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	_, ok := s.inFlight[chatID]
	return ok
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	log := s.logger.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		select {
		case <-s.ctx.Done():
			log.Debug().Msg("worker stopped")
			return
		case job := <-s.queue:
			metrics.QueueDepth.Dec()
			if err := s.process(job); err != nil {
				log.Warn().Err(err).Str("job_id", job.ID).Int64("chat_id", job.ChatID).Msg("conversion failed")
			}
			s.finish(job)
		}
	}
}

// finish drops the job's status message and moves everyone behind it up.
func (s *Scheduler) finish(job *Job) {
	s.inFlightMu.Lock()
	entry := s.inFlight[job.ChatID]
	if entry != nil && entry.jobID == job.ID {
		delete(s.inFlight, job.ChatID)
	} else {
		entry = nil
	}
	s.inFlightMu.Unlock()

	if entry != nil && entry.messageID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = s.wait(ctx)
		if _, err := s.sender.DeleteMessage(ctx, &bot.DeleteMessageParams{
			ChatID:    job.ChatID,
			MessageID: entry.messageID,
		}); err != nil {
			s.logger.Debug().Err(err).Int64("chat_id", job.ChatID).Int("message_id", entry.messageID).Msg("delete status message")
		}
		cancel()
	}

	s.advanceQueue()
}

func (s *Scheduler) advanceQueue() {
	type upd struct {
		chatID    int64
		messageID int
		text      string
	}
	updates := make([]upd, 0)

	s.inFlightMu.Lock()
	for chatID, entry := range s.inFlight {
		if entry.position == 0 {
			continue
		}
		entry.position--
		if entry.messageID == 0 {
			continue
		}
		text := messages.QueueQueued(entry.fileName, entry.position)
		if entry.position == 0 {
			text = messages.QueueStarted(entry.fileName, entry.pages)
		}
		updates = append(updates, upd{chatID: chatID, messageID: entry.messageID, text: text})
	}
	s.inFlightMu.Unlock()

	if len(updates) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, u := range updates {
		if err := s.wait(ctx); err != nil {
			return
		}
		if _, err := s.sender.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    u.chatID,
			MessageID: u.messageID,
			Text:      u.text,
			ParseMode: messages.ParseModeHTML,
		}); err != nil {
			s.logger.Debug().Err(err).Int64("chat_id", u.chatID).Msg("queue update")
		}
	}
}

func (s *Scheduler) process(job *Job) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()
	log := s.logger.With().Str("job_id", job.ID).Int64("chat_id", job.ChatID).Logger()

	res, convErr := s.converter.Convert(ctx, job.Images, job.Options)

	// A /cancel or /new while we were working makes the result unwanted.
	current, err := s.sessions.Current(ctx, job.ChatID, job.Generation)
	if err != nil {
		log.Warn().Err(err).Msg("check session generation")
	} else if !current {
		log.Info().Msg("session changed during conversion, discarding result")
		return nil
	}

	if convErr != nil {
		if !messages.Known(convErr) {
			log.Error().Err(convErr).Msg("unexpected conversion error")
		}
		_, _ = s.sendMessage(ctx, job.ChatID, messages.ErrorConversionFailed(job.FileName, convErr))
		return convErr
	}

	msg, err := s.sendDocument(ctx, job, res.Data)
	if err != nil {
		_, _ = s.sendMessage(ctx, job.ChatID, messages.ErrorDefault())
		return fmt.Errorf("send document: %w", err)
	}

	slug := ""
	if s.catalog != nil && msg != nil && msg.Document != nil && msg.Document.FileID != "" {
		title := job.Options.Title
		if title == "" {
			title = strings.TrimSuffix(job.FileName, ".pdf")
		}
		slug, err = s.catalog.Put(ctx, title, msg.Document.FileID, job.UserID)
		if err != nil {
			log.Warn().Err(err).Msg("catalog put failed")
			slug = ""
		}
	}
	_, _ = s.sendMessage(ctx, job.ChatID, messages.ConversionDone(job.FileName, res.Pages, slug))

	if err := s.sessions.CompleteConversion(ctx, job.ChatID, job.Generation, job.Taken); err != nil {
		log.Warn().Err(err).Msg("complete conversion")
	}
	log.Info().Int("pages", res.Pages).Str("encoder", res.Encoder).Str("slug", slug).Msg("conversion delivered")
	return nil
}

// sendDocument uploads the PDF. Each attempt has its own timeout and a
// failed one is retried up to uploadRetries times.
func (s *Scheduler) sendDocument(ctx context.Context, job *Job, data []byte) (msg *models.Message, err error) {
	for attempt := 0; attempt <= s.uploadRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt+1).Msg("retrying upload")
		}
		if err = s.wait(ctx); err != nil {
			return nil, err
		}
		actx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
		msg, err = s.sender.SendDocument(actx, &bot.SendDocumentParams{
			ChatID: job.ChatID,
			Document: &models.InputFileUpload{
				Filename: job.FileName,
				Data:     bytes.NewReader(data),
			},
			Caption: job.FileName,
		})
		cancel()
		if err == nil {
			return msg, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, err
}

func (s *Scheduler) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *Scheduler) sendMessage(ctx context.Context, chatID int64, text string) (*models.Message, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	msg, err := s.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
	return msg, err
}
