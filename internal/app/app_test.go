package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/config"
	"eventcal/internal/datetime"
	"eventcal/internal/telegram"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Database.DSN = filepath.Join(dir, "eventcal.db")
	cfg.CacheDir = filepath.Join(dir, "cache")

	prev := datetime.Location
	t.Cleanup(func() { datetime.Location = prev })
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, time.UTC, datetime.Location)
	assert.Nil(t, a.Digest)

	_, err = a.RunDigest(context.Background())
	assert.ErrorIs(t, err, ErrTelegramDisabled)

	stats, err := a.SyncICS(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Sources)

	s, err := a.Scheduler()
	require.NoError(t, err)
	assert.Empty(t, s.Next(), "nothing configured, nothing scheduled")

	assert.NotNil(t, a.Server().Handler())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "database.driver")
}

func TestRunDigest_EndToEnd(t *testing.T) {
	var sent atomic.Int32
	var lastText atomic.Value
	bot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		lastText.Store(r.PostForm.Get("text"))
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			sent.Add(1)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-1,"type":"channel"}}}`))
	}))
	defer bot.Close()

	cfg := testConfig(t)
	cfg.Telegram = config.TelegramConfig{
		Enabled: true,
		Token:   "123:abc",
		ChatID:  "@kalender",
		Cron:    "0 * * * *",
		APIURL:  bot.URL,
	}
	cfg.ICS = []config.ICSConfig{{ID: "vhs", URL: "https://example.org/vhs.ics"}}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	action, err := a.RunDigest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, telegram.ActionSent, action)
	assert.Equal(t, int32(1), sent.Load())
	assert.Contains(t, lastText.Load(), "Termine vom")

	action, err = a.RunDigest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, telegram.ActionUnchanged, action)

	s, err := a.Scheduler()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	next := s.Next()
	assert.Contains(t, next, JobDigest)
	assert.Contains(t, next, JobICSSync)
}
