package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "vercelgram/pkg/logx"
)

func echoHandler(tag string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_, _ = io.WriteString(w, tag+":"+string(b))
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	s := New(Config{Path: "hooks/vercel"}, logx.Nop())
	s.SetWebhook(echoHandler("a"), "")
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/hooks/vercel", "x", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a:x", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/hooks/vercel", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestWebhookUnavailableBeforeSet(t *testing.T) {
	s := New(Config{}, logx.Nop())
	rec := do(t, s.Handler(), http.MethodPost, DefaultPath, "{}", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSetWebhookSwapsHandler(t *testing.T) {
	s := New(Config{}, logx.Nop())
	h := s.Handler()

	s.SetWebhook(echoHandler("old"), "")
	assert.Equal(t, "old:1", do(t, h, http.MethodPost, DefaultPath, "1", nil).Body.String())

	s.SetWebhook(echoHandler("new"), "")
	assert.Equal(t, "new:2", do(t, h, http.MethodPost, DefaultPath, "2", nil).Body.String())
}

func TestSignatureRequiredWhenSecretSet(t *testing.T) {
	s := New(Config{}, logx.Nop())
	s.SetWebhook(echoHandler("ok"), "s3cret")
	h := s.Handler()

	body := `{"type":"deployment.created"}`

	rec := do(t, h, http.MethodPost, DefaultPath, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, DefaultPath, body, map[string]string{SignatureHeader: Sign([]byte(body), "other")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, DefaultPath, body, map[string]string{SignatureHeader: "zz"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, DefaultPath, body, map[string]string{SignatureHeader: Sign([]byte(body), "s3cret")})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok:"+body, rec.Body.String(), "body is replayed to the relay")
}

func TestVerifySignatureKnownVector(t *testing.T) {
	// HMAC-SHA1("key", "The quick brown fox jumps over the lazy dog")
	const want = "de7c9b85b8b78aa6bc8a7a36f70a90701c9db4d9"
	msg := []byte("The quick brown fox jumps over the lazy dog")
	assert.Equal(t, want, Sign(msg, "key"))
	assert.NoError(t, verifySignature(msg, strings.ToUpper(want), "key"))
}

func waitForHTTP(ctx context.Context, url string) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	s := New(Config{}, logx.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer wcancel()
	require.NoError(t, waitForHTTP(wctx, "http://"+ln.Addr().String()+"/healthz"))
	assert.Equal(t, ln.Addr().String(), s.Addr())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, "", s.Addr())
}
