package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	logx "vercelgram/pkg/logx"
)

// SignatureHeader carries the hex HMAC-SHA1 of the raw body, keyed by the
// integration's client secret.
const SignatureHeader = "X-Vercel-Signature"

var warnMissingSecretOnce sync.Once

func verifySignature(body []byte, headerSignature, secret string) error {
	if headerSignature == "" {
		return errors.New("missing " + SignatureHeader + " header")
	}

	provided, err := hex.DecodeString(strings.TrimSpace(headerSignature))
	if err != nil {
		return errors.New("invalid signature encoding")
	}

	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return errors.New("signature mismatch")
	}
	return nil
}

// Sign returns the signature Vercel would send for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// requireSignature rejects requests whose body does not match SignatureHeader.
// With an empty secret it passes everything through and warns once.
func requireSignature(secret string, maxBody int64, log logx.Logger, next http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		warnMissingSecretOnce.Do(func() {
			log.Warn("webhook signature verification disabled: webhook.secret is not set")
		})
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			log.Warn("webhook body read failed", logx.Err(err))
			http.Error(w, "Error processing webhook", http.StatusInternalServerError)
			return
		}
		if err := verifySignature(body, r.Header.Get(SignatureHeader), secret); err != nil {
			log.Warn("webhook signature verification failed", logx.Err(err), logx.String("remote", r.RemoteAddr))
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
