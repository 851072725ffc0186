// Package relay forwards Vercel deployment-status webhooks to a Telegram chat.
//
// One request is handled end to end: parse, validate, render, deliver,
// respond. Nothing is retried or stored; every path ends in exactly one
// HTTP response.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"vercelgram/internal/render"
	"vercelgram/internal/transport/telegram"
	"vercelgram/internal/vercel"
	logx "vercelgram/pkg/logx"
)

// DefaultMaxBodyBytes caps the inbound body read by ServeHTTP.
const DefaultMaxBodyBytes int64 = 1 << 20

// Sender delivers one rendered message. *telegram.Client implements it.
type Sender interface {
	Send(ctx context.Context, msg telegram.Message) (*tele.Message, error)
}

// Outcome is the terminal state a webhook reached.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Result is what Handle decided for one webhook body.
type Result struct {
	Status  int
	Body    string
	Outcome Outcome
	// Type is the event type tag, when one could be read.
	Type string
	// Err is non-nil for rejected and failed outcomes. Rejected covers
	// bodies that could not be parsed or validated.
	Err *Error
}

type Handler struct {
	cfg     Config
	sender  Sender
	log     logx.Logger
	maxBody int64
}

type Option func(*Handler)

// WithSender overrides the Telegram client built from Config.
func WithSender(s Sender) Option {
	return func(h *Handler) { h.sender = s }
}

// WithMaxBodyBytes sets the inbound body cap. Values <= 0 keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func New(cfg Config, log logx.Logger, opts ...Option) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Handler{cfg: cfg, log: log, maxBody: DefaultMaxBodyBytes}
	for _, o := range opts {
		o(h)
	}
	if h.sender == nil {
		h.sender = telegram.New(telegram.Config{
			Token:   cfg.BotToken,
			APIBase: cfg.APIBase,
			Timeout: cfg.Timeout,
		}, log.With(logx.String("comp", "telegram")))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(logx.String("request_id", requestID(r)))

	var res Result
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		res = h.fail(log, "", newError(KindMalformedRequest, fmt.Errorf("read body: %w", err)))
	} else {
		res = h.handle(r.Context(), log, body)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(res.Status)
	_, _ = io.WriteString(w, res.Body)
}

// Handle runs one webhook body through the relay.
func (h *Handler) Handle(ctx context.Context, body []byte) Result {
	return h.handle(ctx, h.log.With(logx.String("request_id", uuid.NewString())), body)
}

func (h *Handler) handle(ctx context.Context, log logx.Logger, body []byte) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while processing webhook", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			res = h.fail(log, res.Type, newError(KindUnexpectedError, fmt.Errorf("panic: %v", p)))
		}
	}()

	ev, err := vercel.Decode(body)
	switch {
	case errors.Is(err, vercel.ErrMissingFields):
		return h.fail(log, "", newError(KindInvalidPayload, err))
	case err != nil:
		return h.fail(log, "", newError(KindMalformedRequest, err))
	}
	res.Type = ev.Type
	log = log.With(logx.String("type", ev.Type))
	log.Info("webhook received", logx.Int("bytes", len(body)))

	if !ev.Recognized() {
		log.Info("notification type not handled")
		return Result{Status: http.StatusOK, Body: bodyNotHandled, Outcome: OutcomeIgnored, Type: ev.Type}
	}

	d, err := render.FromEvent(ev)
	if err != nil {
		return h.fail(log, ev.Type, newError(KindMalformedRequest, err))
	}

	if err := h.cfg.CheckCredentials(); err != nil {
		return h.fail(log, ev.Type, newError(KindConfigurationError, err))
	}

	if rerr := h.deliver(ctx, log, d); rerr != nil {
		return h.fail(log, ev.Type, rerr)
	}
	return Result{Status: http.StatusOK, Body: bodySent, Outcome: OutcomeDelivered, Type: ev.Type}
}

func (h *Handler) deliver(ctx context.Context, log logx.Logger, d render.Deployment) *Error {
	// A started delivery runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	sent, err := h.sender.Send(ctx, telegram.Message{
		ChatID:    h.cfg.ChatID,
		Text:      d.Text(),
		ParseMode: telegram.ParseModeMarkdown,
	})
	if err != nil {
		switch {
		case errors.Is(err, tele.ErrChatNotFound):
			log.Warn("telegram chat not found; check the configured chat id")
		case errors.Is(err, tele.ErrUnauthorized):
			log.Warn("telegram rejected the bot token")
		}
		rerr := newError(KindDeliveryError, err)
		if code, ok := telegram.StatusCode(err); ok {
			rerr.Status = code
		}
		return rerr
	}

	msgID := 0
	if sent != nil {
		msgID = sent.ID
	}
	log.Info("telegram notification sent",
		logx.String("status", d.Status),
		logx.String("project", d.Project),
		logx.String("deployment_id", d.ID),
		logx.Int("message_id", msgID),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

func (h *Handler) fail(log logx.Logger, typ string, e *Error) Result {
	log.Error("webhook not relayed",
		logx.String("kind", string(e.Kind)),
		logx.Int("status", e.Status),
		logx.Err(e.Err),
	)
	outcome := OutcomeFailed
	if e.Kind == KindInvalidPayload || e.Kind == KindMalformedRequest {
		outcome = OutcomeRejected
	}
	return Result{Status: e.Status, Body: e.body(), Outcome: outcome, Type: typ, Err: e}
}

// requestID prefers an id set by an upstream proxy.
func requestID(r *http.Request) string {
	for _, k := range []string{"X-Request-Id", "X-Vercel-Id"} {
		if v := r.Header.Get(k); v != "" {
			return v
		}
	}
	return uuid.NewString()
}
