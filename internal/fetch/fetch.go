// Package fetch downloads files that users sent to the bot.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
)

const DefaultFileEndpoint = "https://api.telegram.org/file/bot"

// FileAPI is the part of *bot.Bot needed to resolve a file id.
type FileAPI interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	Token() string
}

type Config struct {
	// Timeout applies to each attempt separately.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first failure.
	Retries int
	// Endpoint is the file URL prefix; the token and file path are appended.
	Endpoint string
}

type Fetcher struct {
	api    FileAPI
	client *http.Client
	cfg    Config
	logger zerolog.Logger
}

type Request struct {
	FileID   string
	FileName string
}

type File struct {
	Path string
	Size int64
}

func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func New(api FileAPI, client *http.Client, cfg Config, logger zerolog.Logger) *Fetcher {
	if client == nil {
		client = NewHTTPClient()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultFileEndpoint
	}
	return &Fetcher{
		api:    api,
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "fetch").Logger(),
	}
}

// Download stores the file in scope. Each attempt has its own timeout; a
// failed attempt is retried up to cfg.Retries times.
func (f *Fetcher) Download(ctx context.Context, scope *blob.Scope, req Request) (file File, err error) {
	defer func() {
		metrics.DownloadsTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			f.logger.Warn().Err(err).Str("file_id", req.FileID).Int("attempt", attempt+1).Msg("retrying download")
		}
		file, err = f.attempt(ctx, scope, req)
		if err == nil {
			return file, nil
		}
		if ctx.Err() != nil {
			return File{}, ctx.Err()
		}
	}
	return File{}, err
}

func (f *Fetcher) attempt(ctx context.Context, scope *blob.Scope, req Request) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	info, err := f.api.GetFile(ctx, &bot.GetFileParams{FileID: req.FileID})
	if err != nil {
		return File{}, fmt.Errorf("get file info: %w", err)
	}
	if info == nil || strings.TrimSpace(info.FilePath) == "" {
		return File{}, errors.New("get file info: empty file path")
	}

	fileURL := f.cfg.Endpoint + f.api.Token() + "/" + info.FilePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return File{}, err
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return File{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return File{}, fmt.Errorf("bad status: %d", resp.StatusCode)
	}

	name := req.FileName
	if name == "" {
		name = "image"
	}
	path, n, err := scope.Write(name, resp.Body)
	if err != nil {
		return File{}, fmt.Errorf("store download: %w", err)
	}
	return File{Path: path, Size: n}, nil
}
