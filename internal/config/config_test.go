package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func TestParseUserIDs(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 3}, ParseUserIDs("1, 2;3"))
	assert.Equal(t, []int64{42}, ParseUserIDs("abc 42\n"))
	assert.Empty(t, ParseUserIDs(""))
}

func TestLoad_EnvOverridesFileAndYAML(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "config.env")
	require.NoError(t, os.WriteFile(envPath, []byte("BOT_TOKEN=from-file\nMAX_IMAGES=7\n"), 0o600))

	yamlPath := filepath.Join(dir, "bot.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
limits:
  max_dimension: 1200
session:
  ttl: 2h
pdf:
  default_page_size: A4
`), 0o600))

	t.Setenv("CONFIG_FILE", yamlPath)
	t.Setenv("MAX_IMAGES", "5")
	t.Setenv("ADMIN_USER_IDS", "10,20")
	t.Setenv("DEFAULT_MARGIN_MM", "12")
	// godotenv writes into the process env; restore afterwards.
	t.Cleanup(func() { _ = os.Unsetenv("BOT_TOKEN") })

	cfg, err := Load(envPath)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.BotToken)
	assert.Equal(t, 5, cfg.Limits.MaxImages)
	assert.Equal(t, 1200, cfg.Limits.MaxDimension)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, types.PageSizeA4, cfg.PDF.DefaultPageSize)
	assert.Equal(t, 12, cfg.PDF.DefaultMarginMM)
	assert.True(t, cfg.IsAdmin(20))
	assert.False(t, cfg.IsAdmin(30))
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Limits.MaxImages)
}

func TestDefault_TransfersRetryOnce(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.Download.Retries)
	assert.Equal(t, 1, cfg.Upload.Retries)
	assert.Positive(t, cfg.Download.Timeout)
	assert.Positive(t, cfg.Upload.Timeout)

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("UPLOAD_TIMEOUT", "45s")
	t.Setenv("UPLOAD_RETRIES", "0")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Upload.Timeout)
	assert.Equal(t, 0, cfg.Upload.Retries)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MAX_IMAGES", "lots")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_IMAGES")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "token is required")

	cfg.BotToken = "t"
	require.NoError(t, cfg.Validate())

	cfg.Catalog.Backend = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.BotToken = "t"
	cfg.PDF.JPEGQuality = 0
	assert.Error(t, cfg.Validate())
}
