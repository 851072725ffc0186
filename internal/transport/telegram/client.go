// Package telegram is the outbound Bot API client used to deliver relay messages.
//
// It talks to the sendMessage method directly over HTTP instead of going
// through telebot's Bot, because the relay needs the provider's HTTP status
// to shape its own response. telebot still supplies the wire types.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "vercelgram/pkg/logx"
)

const DefaultAPIBase = "https://api.telegram.org"

// ParseModeMarkdown selects Telegram's legacy Markdown parser.
const ParseModeMarkdown = string(tele.ModeMarkdown)

// maxErrorBody bounds how much of a failed response is read for logging.
const maxErrorBody = 64 << 10

var ErrTokenMissing = errors.New("telegram: bot token is empty")

type Config struct {
	Token string
	// APIBase is the Bot API root, without the /bot<TOKEN> part.
	APIBase string
	// Timeout bounds one HTTP exchange. Zero leaves the transport default (none).
	Timeout time.Duration
}

// Message is the sendMessage request body.
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// APIError is returned when the Bot API answers with a non-2xx status or ok=false.
type APIError struct {
	// StatusCode is the HTTP status of the provider response.
	StatusCode  int
	ErrorCode   int
	Description string
	// Known is telebot's sentinel for Description (e.g. tele.ErrChatNotFound), or nil.
	Known error
}

func newAPIError(status, code int, desc string) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Description: desc, Known: tele.Err(desc)}
}

// Unwrap lets errors.Is match telebot sentinels such as tele.ErrBlockedByUser.
func (e *APIError) Unwrap() error { return e.Known }

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram sendMessage failed: %s (code=%d http=%d)", e.Description, e.ErrorCode, e.StatusCode)
	}
	return fmt.Sprintf("telegram sendMessage failed: http=%d", e.StatusCode)
}

// StatusCode extracts the provider HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var ae *APIError
	if errors.As(err, &ae) && ae.StatusCode/100 != 2 && ae.StatusCode != 0 {
		return ae.StatusCode, true
	}
	return 0, false
}

type Client struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func New(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	cfg.Token = strings.TrimSpace(cfg.Token)
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, log: log, http: &http.Client{Timeout: cfg.Timeout}}
}

// WithHTTPClient swaps the underlying HTTP client (tests point it at httptest servers).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.http = hc
	return &cp
}

func (c *Client) endpoint(method string) string {
	return c.cfg.APIBase + "/bot" + c.cfg.Token + "/" + method
}

// Send posts msg to sendMessage and returns the delivered message.
//
// Failures are one of: *APIError (provider answered), a transport error, or
// a decode error for a 2xx body that is not a Bot API envelope.
func (c *Client) Send(ctx context.Context, msg Message) (*tele.Message, error) {
	if c.cfg.Token == "" {
		return nil, ErrTokenMissing
	}
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewReader(b))
	if err != nil {
		return nil, c.redact(err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram sendMessage: %w", c.redact(err))
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool            `json:"ok"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}

	if resp.StatusCode/100 != 2 {
		// Best-effort: the status alone is enough to report the failure.
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&out)
		return nil, newAPIError(resp.StatusCode, out.ErrorCode, out.Description)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("telegram sendMessage: decode response (http=%d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		return nil, newAPIError(resp.StatusCode, out.ErrorCode, out.Description)
	}

	var sent tele.Message
	if len(out.Result) > 0 {
		if err := json.Unmarshal(out.Result, &sent); err != nil {
			return nil, fmt.Errorf("telegram sendMessage: decode result: %w", err)
		}
	}

	chatID := msg.ChatID
	if sent.Chat != nil {
		chatID = strconv.FormatInt(sent.Chat.ID, 10)
	}
	c.log.Debug("message sent",
		logx.String("chat_id", chatID),
		logx.Int("message_id", sent.ID),
		logx.Duration("took", time.Since(start)),
	)
	return &sent, nil
}

// SendPlain sends text without a parse mode. It backs the log sink.
func (c *Client) SendPlain(ctx context.Context, chatID, text string) error {
	_, err := c.Send(ctx, Message{ChatID: chatID, Text: text, DisableWebPagePreview: true})
	return err
}

// redact strips the bot token from transport errors, which embed the request URL.
func (c *Client) redact(err error) error {
	if err == nil || c.cfg.Token == "" || !strings.Contains(err.Error(), c.cfg.Token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), c.cfg.Token, "<redacted>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
