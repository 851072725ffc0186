package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"vercelgram/internal/transport/telegram"
	logx "vercelgram/pkg/logx"
)

const scenarioBody = `{"type":"deployment.succeeded","payload":{"name":"site","url":"https://site.example","deployment":{"id":"dep_1"}},"createdAt":"2024-01-01T00:00:00.000Z"}`

// fakeBotAPI records sendMessage calls and answers with a fixed status.
type fakeBotAPI struct {
	mu     sync.Mutex
	calls  []telegram.Message
	paths  []string
	status int
	reply  string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var m telegram.Message
	_ = json.NewDecoder(r.Body).Decode(&m)

	f.mu.Lock()
	f.calls = append(f.calls, m)
	f.paths = append(f.paths, r.URL.Path)
	status, reply := f.status, f.reply
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if reply == "" {
		reply = `{"ok":true,"result":{"message_id":7}}`
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply)
}

func (f *fakeBotAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newRelay(t *testing.T, api *fakeBotAPI, cfg Config) (*Handler, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	cfg.APIBase = srv.URL
	var logs bytes.Buffer
	return New(cfg, logx.NewWriter(&logs, "debug")), &logs
}

func validConfig() Config {
	return Config{BotToken: "123:abc", ChatID: "-1001"}
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScenarioSucceeded(t *testing.T) {
	api := &fakeBotAPI{}
	h, _ := newRelay(t, api, validConfig())

	rec := post(h, scenarioBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Telegram notification sent", rec.Body.String())

	require.Equal(t, 1, api.count())
	msg := api.calls[0]
	assert.Equal(t, "/bot123:abc/sendMessage", api.paths[0])
	assert.Equal(t, "-1001", msg.ChatID)
	assert.Equal(t, "Markdown", msg.ParseMode)
	for _, want := range []string{"SUCCEEDED", "site", "https://site.example", `dep\_1`, "N/A", "2024-01-01T00:00:00.000Z"} {
		assert.Contains(t, msg.Text, want)
	}
	assert.Equal(t, 4, strings.Count(msg.Text, "N/A"), "author, message, sha and environment")
}

func TestRecognizedTypesDeliverOnce(t *testing.T) {
	for _, typ := range []string{"deployment.created", "deployment.succeeded", "deployment.failed"} {
		t.Run(typ, func(t *testing.T) {
			api := &fakeBotAPI{}
			h, _ := newRelay(t, api, validConfig())

			body := strings.Replace(scenarioBody, "deployment.succeeded", typ, 1)
			res := h.Handle(context.Background(), []byte(body))
			assert.Equal(t, http.StatusOK, res.Status)
			assert.Equal(t, OutcomeDelivered, res.Outcome)
			require.Equal(t, 1, api.count())

			status := strings.ToUpper(strings.SplitN(typ, ".", 2)[1])
			assert.Contains(t, api.calls[0].Text, "("+status+")")
		})
	}
}

func TestMissingPayloadOrTypeIs400(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"type":"deployment.succeeded"}`,
		`{"payload":{"name":"site"}}`,
		`{"type":null,"payload":{}}`,
		`{"type":"deployment.failed","payload":""}`,
	}
	for _, b := range bodies {
		api := &fakeBotAPI{}
		h, _ := newRelay(t, api, validConfig())

		rec := post(h, b)
		assert.Equal(t, http.StatusBadRequest, rec.Code, b)
		assert.Equal(t, "Invalid payload", rec.Body.String())
		assert.Zero(t, api.count(), b)
	}
}

func TestUnrecognizedTypeIsAcknowledged(t *testing.T) {
	for _, typ := range []string{`"project.created"`, `"deployment.canceled"`, `"deployment"`, `42`, `true`} {
		api := &fakeBotAPI{}
		h, _ := newRelay(t, api, validConfig())

		rec := post(h, `{"type":`+typ+`,"payload":{"name":"x"}}`)
		assert.Equal(t, http.StatusOK, rec.Code, typ)
		assert.Equal(t, "Notification type not handled", rec.Body.String())
		assert.Zero(t, api.count(), typ)
	}
}

func TestMalformedJSONIs500(t *testing.T) {
	api := &fakeBotAPI{}
	h, _ := newRelay(t, api, validConfig())

	res := h.Handle(context.Background(), []byte(`{"type":`))
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "Error processing webhook", res.Body)
	require.NotNil(t, res.Err)
	assert.Equal(t, KindMalformedRequest, res.Err.Kind)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Zero(t, api.count())
}

func TestPayloadWithoutDeploymentIs500(t *testing.T) {
	api := &fakeBotAPI{}
	h, _ := newRelay(t, api, validConfig())

	res := h.Handle(context.Background(), []byte(`{"type":"deployment.created","payload":{"name":"site"},"createdAt":1}`))
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, KindMalformedRequest, res.Err.Kind)
	assert.Zero(t, api.count())
}

func TestUnconvertibleCreatedAtIs500(t *testing.T) {
	cases := map[string]string{
		"missing":      ``,
		"null":         `,"createdAt":null`,
		"boolean":      `,"createdAt":true`,
		"object":       `,"createdAt":{}`,
		"garbage":      `,"createdAt":"yesterday"`,
		"too large":    `,"createdAt":1e20`,
		"past max":     `,"createdAt":9e15`,
		"too negative": `,"createdAt":-9e15`,
		"overflow":     `,"createdAt":1e400`,
	}
	for name, tail := range cases {
		t.Run(name, func(t *testing.T) {
			api := &fakeBotAPI{}
			h, _ := newRelay(t, api, validConfig())

			body := `{"type":"deployment.succeeded","payload":{"name":"site","deployment":{"id":"d"}}` + tail + `}`
			res := h.Handle(context.Background(), []byte(body))
			assert.Equal(t, http.StatusInternalServerError, res.Status)
			assert.Equal(t, "Error processing webhook", res.Body)
			require.NotNil(t, res.Err)
			assert.Equal(t, KindMalformedRequest, res.Err.Kind)
			assert.Zero(t, api.count())
		})
	}
}

func TestCreatedAtAtRangeLimitIsDelivered(t *testing.T) {
	api := &fakeBotAPI{}
	h, _ := newRelay(t, api, validConfig())

	body := `{"type":"deployment.succeeded","payload":{"name":"site","deployment":{"id":"d"}},"createdAt":8.64e15}`
	res := h.Handle(context.Background(), []byte(body))
	assert.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, 1, api.count())
	assert.Contains(t, api.calls[0].Text, "275760-09-13T00:00:00.000Z")
}

func TestMissingCredentials(t *testing.T) {
	cfgs := map[string]Config{
		"no token":   {ChatID: "1"},
		"no chat":    {BotToken: "123:abc"},
		"neither":    {},
		"whitespace": {BotToken: "  ", ChatID: "1"},
	}
	for name, cfg := range cfgs {
		t.Run(name, func(t *testing.T) {
			api := &fakeBotAPI{}
			h, _ := newRelay(t, api, cfg)

			rec := post(h, scenarioBody)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "Telegram configuration error", rec.Body.String())
			assert.Zero(t, api.count())
		})
	}
}

func TestProviderRejectionStatusIsPropagated(t *testing.T) {
	api := &fakeBotAPI{status: http.StatusForbidden, reply: `{"ok":false,"error_code":403,"description":"Forbidden"}`}
	h, logs := newRelay(t, api, validConfig())

	rec := post(h, scenarioBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Error sending Telegram notification", rec.Body.String())
	assert.Equal(t, 1, api.count())
	assert.Contains(t, logs.String(), `"kind":"DeliveryError"`)
}

func TestChatNotFoundIsLoggedWithHint(t *testing.T) {
	api := &fakeBotAPI{status: http.StatusBadRequest, reply: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`}
	h, logs := newRelay(t, api, validConfig())

	res := h.Handle(context.Background(), []byte(scenarioBody))
	assert.Equal(t, http.StatusBadRequest, res.Status)
	require.NotNil(t, res.Err)
	assert.ErrorIs(t, res.Err, tele.ErrChatNotFound)
	assert.Contains(t, logs.String(), "telegram chat not found")
}

func TestMalformedProviderResponseIs500(t *testing.T) {
	api := &fakeBotAPI{reply: `not json`}
	h, _ := newRelay(t, api, validConfig())

	res := h.Handle(context.Background(), []byte(scenarioBody))
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, KindDeliveryError, res.Err.Kind)
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

type stubSender struct {
	err   error
	panic bool
	calls int
}

func (s *stubSender) Send(ctx context.Context, msg telegram.Message) (*tele.Message, error) {
	s.calls++
	if s.panic {
		panic("boom")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &tele.Message{ID: 1}, s.err
}

func TestNetworkErrorIs500(t *testing.T) {
	s := &stubSender{err: errors.New("connection reset")}
	h := New(validConfig(), logx.Nop(), WithSender(s))

	res := h.Handle(context.Background(), []byte(scenarioBody))
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, KindDeliveryError, res.Err.Kind)
	assert.Equal(t, 1, s.calls)
}

func TestPanicIsContained(t *testing.T) {
	s := &stubSender{panic: true}
	h := New(validConfig(), logx.Nop(), WithSender(s))

	rec := post(h, scenarioBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error processing webhook", rec.Body.String())
}

func TestDeliveryIgnoresCallerCancellation(t *testing.T) {
	s := &stubSender{}
	h := New(validConfig(), logx.Nop(), WithSender(s))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.Handle(ctx, []byte(scenarioBody))
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	s := &stubSender{}
	h := New(validConfig(), logx.Nop(), WithSender(s), WithMaxBodyBytes(16))

	rec := post(h, scenarioBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, s.calls)
}
