package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "abcdef")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
}

func TestInitConfigurationDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := InitConfiguration()
	require.NoError(t, err)

	assert.Equal(t, int32(12345), cfg.ApiId)
	assert.Equal(t, "abcdef", cfg.ApiHash)
	assert.Equal(t, "autoforward", cfg.MongoDb)
	assert.Equal(t, 1500*time.Millisecond, cfg.AlbumDebounceWindow)
	assert.Equal(t, 5*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, int32(50), cfg.HistoryPageSize)
	assert.Equal(t, 1, cfg.HistoryRate)
	assert.Equal(t, 10, cfg.SendRate)
	assert.Equal(t, 3, cfg.MaxSendRetries)
}

func TestInitConfigurationOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ALBUM_DEBOUNCE_MS", "700")
	t.Setenv("SEND_RATE", "2")
	t.Setenv("MONGODB_DATABASE", "other")

	cfg, err := InitConfiguration()
	require.NoError(t, err)
	assert.Equal(t, 700*time.Millisecond, cfg.AlbumDebounceWindow)
	assert.Equal(t, 2, cfg.SendRate)
	assert.Equal(t, "other", cfg.MongoDb)
}

func TestInitConfigurationRequiredKeys(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_API_ID", "0")
	_, err := InitConfiguration()
	assert.Error(t, err)

	setRequired(t)
	t.Setenv("TELEGRAM_API_HASH", "")
	_, err = InitConfiguration()
	assert.Error(t, err)

	setRequired(t)
	t.Setenv("MONGODB_URI", "")
	_, err = InitConfiguration()
	assert.Error(t, err)
}
