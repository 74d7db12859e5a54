package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// EventType identifies a generation stream event.
type EventType string

const (
	// EventToken carries a chunk of generated text.
	EventToken EventType = "token"

	// EventToolCall signals the generation service requested a tool invocation.
	EventToolCall EventType = "tool_call"

	// EventToolResult carries the result of a tool invocation.
	EventToolResult EventType = "tool_result"

	// EventDone signals successful completion. Response is set.
	EventDone EventType = "done"

	// EventError signals a terminal failure. Err is set.
	EventError EventType = "error"
)

// Event is a single item in a generation stream.
type Event struct {
	Type EventType

	// Text is the token chunk for EventToken.
	Text string

	// ToolName and ToolInput are set for EventToolCall.
	ToolName  string
	ToolInput json.RawMessage

	// ToolResult is the serialized result for EventToolResult.
	ToolResult string

	// Response is the full completion for EventDone.
	Response *Response

	// Err is the terminal error for EventError.
	Err error
}

// CancelToken supports cooperative cancellation of a generation stream.
// The consumer calls Cancel; the stream observes it between events and
// terminates. In-flight transport requests are not interrupted.
type CancelToken struct {
	cancelled atomic.Bool

	mu     sync.Mutex
	reason string
}

// NewCancelToken creates an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel marks the token. The first reason wins.
func (t *CancelToken) Cancel(reason string) {
	if t.cancelled.CompareAndSwap(false, true) {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}

// Reason returns the cancellation reason, empty if not cancelled.
func (t *CancelToken) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// EventStream is a pull-based stream of generation events. Events are
// consumed with Next; the stream ends after a done or error event.
// EventStream is not safe for concurrent use.
type EventStream struct {
	fetch   func() []Event
	pending []Event
	cancel  *CancelToken
	started bool
	closed  bool
}

// NewEventStream creates a stream pre-seeded with events. Used by
// backends that produce all events up front and by tests.
func NewEventStream(events ...Event) *EventStream {
	return &EventStream{pending: events, started: true}
}

// Next returns the next event. ok is false once the stream is exhausted.
// Checks the cancel token between events; a cancelled stream yields one
// error event and then ends.
func (s *EventStream) Next() (Event, bool) {
	if s.closed {
		return Event{}, false
	}

	if s.cancel != nil && s.cancel.Cancelled() {
		s.closed = true
		reason := s.cancel.Reason()
		if reason == "" {
			reason = "cancelled"
		}
		return Event{Type: EventError, Err: fmt.Errorf("generation cancelled: %s", reason)}, true
	}

	if !s.started {
		s.started = true
		s.pending = s.fetch()
		s.fetch = nil
	}

	if len(s.pending) == 0 {
		s.closed = true
		return Event{}, false
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	if ev.Type == EventDone || ev.Type == EventError {
		s.closed = true
		s.pending = nil
	}
	return ev, true
}

// Collect drains the stream and returns the final response. A terminal
// error event is returned as an error; a stream that ends without a
// done event returns an error as well.
func (s *EventStream) Collect() (*Response, error) {
	for {
		ev, ok := s.Next()
		if !ok {
			return nil, fmt.Errorf("stream ended without completion")
		}
		switch ev.Type {
		case EventDone:
			return ev.Response, nil
		case EventError:
			return nil, ev.Err
		}
	}
}

// Stream runs a completion request as an event stream. The underlying
// transport is blocking, so the request executes on the first Next call
// and yields the full completion as a single token event followed by
// done. Transport failures become a terminal error event.
func (c *Client) Stream(ctx context.Context, req Request, cancel *CancelToken) *EventStream {
	return &EventStream{
		cancel: cancel,
		fetch: func() []Event {
			resp, err := c.Complete(ctx, req)
			if err != nil {
				return []Event{{Type: EventError, Err: err}}
			}
			return []Event{
				{Type: EventToken, Text: resp.Content},
				{Type: EventDone, Response: resp},
			}
		},
	}
}
