// Package vercel models the deployment-status webhook that Vercel posts to
// integration endpoints.
package vercel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Recognized deployment-status event types.
const (
	TypeDeploymentCreated   = "deployment.created"
	TypeDeploymentSucceeded = "deployment.succeeded"
	TypeDeploymentFailed    = "deployment.failed"
)

var (
	ErrMalformed     = errors.New("vercel: malformed event")
	ErrMissingFields = errors.New("vercel: payload or type missing")
)

// Envelope is the raw top-level webhook body.
//
// Fields stay raw so presence can be judged the way the sender means it:
// null, false, 0 and "" all count as absent.
type Envelope struct {
	Type      json.RawMessage `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt json.RawMessage `json:"createdAt"`
}

// Payload is the deployment section of a deployment-status event.
type Payload struct {
	Name       string      `json:"name"`
	URL        string      `json:"url"`
	Target     string      `json:"target"`
	Deployment *Deployment `json:"deployment"`
}

type Deployment struct {
	ID   string `json:"id"`
	Meta *Meta  `json:"meta"`
}

// Meta carries the git metadata Vercel attaches for GitHub-backed projects.
type Meta struct {
	GithubCommitAuthorName string `json:"githubCommitAuthorName"`
	GithubCommitMessage    string `json:"githubCommitMessage"`
	GithubCommitSha        string `json:"githubCommitSha"`
}

// Event is a decoded envelope whose type and payload are both present.
type Event struct {
	// Type is empty when the sender used a non-string type tag.
	Type      string
	Payload   json.RawMessage
	CreatedAt json.RawMessage
}

// Recognized reports whether the event is one of the three deployment-status types.
func (e Event) Recognized() bool {
	switch e.Type {
	case TypeDeploymentCreated, TypeDeploymentSucceeded, TypeDeploymentFailed:
		return true
	}
	return false
}

// Status returns the part of the type after the first '.', e.g. "succeeded".
func (e Event) Status() string {
	_, after, ok := strings.Cut(e.Type, ".")
	if !ok {
		return ""
	}
	return after
}

// Decode parses a webhook body.
//
// Invalid JSON wraps ErrMalformed. A body without a truthy payload or type
// wraps ErrMissingFields.
func Decode(body []byte) (Event, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return Event{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return Event{}, fmt.Errorf("%w: null body", ErrMalformed)
	case trimmed[0] != '{':
		// Arrays and scalars have no fields to read.
		return Event{}, ErrMissingFields
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !truthy(env.Payload) || !truthy(env.Type) {
		return Event{}, ErrMissingFields
	}

	ev := Event{Payload: env.Payload, CreatedAt: env.CreatedAt}
	var typ string
	if err := json.Unmarshal(env.Type, &typ); err == nil {
		ev.Type = typ
	}
	return ev, nil
}

// Deployment decodes the payload of a recognized event.
func (e Event) Deployment() (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	if p.Deployment == nil {
		return nil, fmt.Errorf("%w: payload.deployment missing", ErrMalformed)
	}
	return &p, nil
}

// Timestamp converts createdAt to a UTC time.
//
// Vercel sends epoch milliseconds; ISO-8601 strings are accepted too.
func (e Event) Timestamp() (time.Time, error) {
	raw := bytes.TrimSpace(e.CreatedAt)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("%w: createdAt missing", ErrMalformed)
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: createdAt: %v", ErrMalformed, err)
		}
		return parseTimeString(s)
	}

	var ms json.Number
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("%w: createdAt: %v", ErrMalformed, err)
	}
	f, err := ms.Float64()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: createdAt: %v", ErrMalformed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxEpochMillis {
		return time.Time{}, fmt.Errorf("%w: createdAt: %s out of range", ErrMalformed, ms)
	}
	return time.UnixMilli(int64(f)).UTC(), nil
}

// maxEpochMillis is the widest instant a Vercel timestamp may name (±100,000,000 days).
const maxEpochMillis = 8.64e15

func inRange(t time.Time) bool {
	ms := t.UnixMilli()
	return ms >= -maxEpochMillis && ms <= maxEpochMillis
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if !inRange(t) {
				return time.Time{}, fmt.Errorf("%w: createdAt: %q out of range", ErrMalformed, s)
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: createdAt: invalid time %q", ErrMalformed, s)
}

// FormatTimestamp renders t as ISO-8601 UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch string(v) {
	case "null", "false", `""`:
		return false
	}
	if v[0] == '-' || (v[0] >= '0' && v[0] <= '9') {
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			if f, err := n.Float64(); err == nil && f == 0 {
				return false
			}
		}
	}
	return true
}
