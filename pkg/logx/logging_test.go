package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	chat []string
}

func (r *recordingSender) SendPlain(_ context.Context, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat = append(r.chat, chatID)
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "relay"))

	log.Debug("hidden")
	log.Info("sent", Int("status", 200), Bool("ok", true))

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	assert.Equal(t, "sent", m["message"])
	assert.Equal(t, "relay", m["comp"])
	assert.Equal(t, float64(200), m["status"])
	assert.Contains(t, m["caller"], "logging_test.go:")
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	assert.NotPanics(t, func() { log.Error("nothing", Err(nil)) })
	assert.False(t, Nop().IsZero())
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "INFO", "warning", "error", "trace"} {
		assert.True(t, ValidLevel(s), s)
	}
	assert.False(t, ValidLevel("loud"))
}

func TestTelegramSinkHonoursMinLevel(t *testing.T) {
	snd := &recordingSender{}
	svc, log := New(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: t.TempDir() + "/app.log"},
		Telegram: TelegramConfig{
			Enabled:    true,
			ChatID:     "-42",
			MinLevel:   "warn",
			RatePerSec: 10,
		},
	}, snd)
	defer svc.Close()

	log.Info("routine")
	log.Warn("delivery failed", String("type", "deployment.failed"))

	require.Eventually(t, func() bool { return len(snd.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := snd.messages()[0]
	assert.Contains(t, msg, "[WARN] delivery failed")
	assert.Contains(t, msg, "- type=deployment.failed")
	assert.Equal(t, []string{"-42"}, snd.chat)
}

func TestTelegramSinkSilentWithoutSender(t *testing.T) {
	snd := &recordingSender{}
	svc, log := New(Config{
		Level:    "info",
		File:     FileConfig{Enabled: true, Path: t.TempDir() + "/app.log"},
		Telegram: TelegramConfig{Enabled: true, ChatID: "-42"},
	}, nil)
	defer svc.Close()

	log.Error("dropped")
	svc.SetSender(snd)
	log.Error("forwarded")

	require.Eventually(t, func() bool { return len(snd.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, snd.messages()[0], "forwarded")
}

func TestFormatTelegramJSONTruncates(t *testing.T) {
	assert.Equal(t, "plain", formatTelegramJSON([]byte("plain\n")))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
