package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// VerbPath is where the originating HTTP verb lives inside Detail.
const VerbPath = "requestConfig.verb"

// RequestConfig describes the HTTP request whose completion is being announced.
type RequestConfig struct {
	Verb      string `json:"verb"`
	Path      string `json:"path,omitempty"`
	Status    int    `json:"status,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// CompletionEvent is fired once an asynchronous HTTP request has finished.
// Subscribers treat it as read-only and must not keep it after handling.
type CompletionEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Origin identifies the process that first published the event.
	// Bridges use it to avoid echoing their own events back.
	Origin string `json:"origin,omitempty"`

	// Detail is kept as raw JSON. The only contract is that it may carry
	// requestConfig.verb; anything else is opaque to the listener.
	Detail json.RawMessage `json:"detail"`
}

type detailPayload struct {
	RequestConfig RequestConfig `json:"requestConfig"`
}

// NewCompletionEvent builds an event whose detail carries rc.
func NewCompletionEvent(rc RequestConfig) *CompletionEvent {
	detail, _ := json.Marshal(detailPayload{RequestConfig: rc}) // plain struct, cannot fail
	return &CompletionEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Detail:    detail,
	}
}

// Verb returns requestConfig.verb, or "" when the detail lacks it.
func (e *CompletionEvent) Verb() string {
	if e == nil {
		return ""
	}
	v := e.Lookup(VerbPath)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// Lookup reads a gjson path out of Detail. Invalid JSON yields a missing result.
func (e *CompletionEvent) Lookup(path string) gjson.Result {
	if e == nil || !gjson.ValidBytes(e.Detail) {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.Detail, path)
}

// Encode returns the JSON wire form used by the relay and the Redis bridge.
func (e *CompletionEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

var ErrEmptyEvent = errors.New("empty event payload")

// DecodeCompletionEvent parses a wire event. A bare detail object such as
// {"requestConfig":{"verb":"POST"}} is accepted too and wrapped into a fresh event.
func DecodeCompletionEvent(raw []byte) (*CompletionEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyEvent
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode completion event: invalid json")
	}

	if !gjson.GetBytes(raw, "detail").Exists() {
		detail := make(json.RawMessage, len(raw))
		copy(detail, raw)
		return &CompletionEvent{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC(),
			Detail:    detail,
		}, nil
	}

	var evt CompletionEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("decode completion event: %w", err)
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return &evt, nil
}
