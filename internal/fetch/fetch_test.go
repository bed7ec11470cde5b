package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/internal/logging"
)

type fakeAPI struct {
	fail atomic.Int32
}

func (f *fakeAPI) GetFile(_ context.Context, params *bot.GetFileParams) (*models.File, error) {
	if f.fail.Load() > 0 {
		f.fail.Add(-1)
		return nil, errors.New("telegram unavailable")
	}
	return &models.File{FileID: params.FileID, FilePath: "photos/" + params.FileID + ".jpg"}, nil
}

func (f *fakeAPI) Token() string { return "TOKEN" }

func newFetcher(t *testing.T, api FileAPI, handler http.HandlerFunc, cfg Config) (*Fetcher, *blob.Scope) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.Endpoint = srv.URL + "/file/bot"

	blobs, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)
	scope, err := blobs.Session(1)
	require.NoError(t, err)
	return New(api, srv.Client(), cfg, logging.Nop()), scope
}

func TestDownload(t *testing.T) {
	var gotPath string
	f, scope := newFetcher(t, &fakeAPI{}, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("image-bytes"))
	}, Config{})

	file, err := f.Download(context.Background(), scope, Request{FileID: "abc", FileName: "cat.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "/file/botTOKEN/photos/abc.jpg", gotPath)
	assert.EqualValues(t, len("image-bytes"), file.Size)
	assert.True(t, scope.Owns(file.Path))

	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestDownload_RetriesOnce(t *testing.T) {
	api := &fakeAPI{}
	api.fail.Store(1)
	f, scope := newFetcher(t, api, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}, Config{Retries: 1})

	_, err := f.Download(context.Background(), scope, Request{FileID: "x"})
	require.NoError(t, err)

	api.fail.Store(2)
	_, err = f.Download(context.Background(), scope, Request{FileID: "x"})
	assert.Error(t, err)
}

func TestDownload_BadStatus(t *testing.T) {
	var calls atomic.Int32
	f, scope := newFetcher(t, &fakeAPI{}, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, Config{Retries: 1})

	_, err := f.Download(context.Background(), scope, Request{FileID: "gone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.EqualValues(t, 2, calls.Load())
}

func TestDownload_TimeoutPerAttempt(t *testing.T) {
	f, scope := newFetcher(t, &fakeAPI{}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Config{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := f.Download(context.Background(), scope, Request{FileID: "slow"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
