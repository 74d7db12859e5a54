// Package events publishes validation and retry progress to the GUI
// shell over NATS. Publishing is best-effort and nil-safe: a core
// running without a bus configured skips every publish.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loomworks/canoncore/pipeline"
)

// Subjects for GUI progress events.
const (
	SubjectValidationResult = "canoncore.validation.result"
	SubjectRetryAttempt     = "canoncore.retry.attempt"
	SubjectRetryFallback    = "canoncore.retry.fallback"
)

// ValidationEvent summarizes one validation outcome for the GUI.
type ValidationEvent struct {
	TemplateID   string    `json:"template_id,omitempty"`
	EntityID     string    `json:"entity_id,omitempty"`
	Passed       bool      `json:"passed"`
	ErrorCount   int       `json:"error_count"`
	NeedsRetry   bool      `json:"needs_retry"`
	HumanMessage string    `json:"human_message,omitempty"`
	At           time.Time `json:"at"`
}

// RetryEvent reports one attempt of the regeneration loop.
type RetryEvent struct {
	Attempt    int       `json:"attempt"`
	MaxRetries int       `json:"max_retries"`
	Passed     bool      `json:"passed"`
	ErrorCount int       `json:"error_count"`
	At         time.Time `json:"at"`
}

// FallbackEvent signals retry exhaustion; the GUI should offer manual
// entry.
type FallbackEvent struct {
	Attempts     int       `json:"attempts"`
	HumanMessage string    `json:"human_message,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher emits progress events. A nil Publisher, or one constructed
// with a nil connection, drops everything silently.
type Publisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewPublisher wraps a NATS connection. nc may be nil.
func NewPublisher(nc *nats.Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, logger: logger}
}

// Connect dials the bus and returns a publisher over it.
func Connect(url string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to event bus: %w", err)
	}
	return NewPublisher(nc, logger), nil
}

// Close drains the underlying connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}

// ValidationResult publishes a validation outcome.
func (p *Publisher) ValidationResult(templateID, entityID string, result *pipeline.ValidationResult) {
	if result == nil {
		return
	}
	p.publish(SubjectValidationResult, ValidationEvent{
		TemplateID:   templateID,
		EntityID:     entityID,
		Passed:       result.Passed,
		ErrorCount:   result.ErrorCount(),
		NeedsRetry:   result.NeedsRetry,
		HumanMessage: result.HumanMessage,
		At:           time.Now(),
	})
}

// RetryAttempt publishes one loop attempt. Wired as the retry manager's
// attempt hook.
func (p *Publisher) RetryAttempt(attempt, maxRetries int, result *pipeline.ValidationResult) {
	event := RetryEvent{
		Attempt:    attempt,
		MaxRetries: maxRetries,
		At:         time.Now(),
	}
	if result != nil {
		event.Passed = result.Passed
		event.ErrorCount = result.ErrorCount()
	}
	p.publish(SubjectRetryAttempt, event)
}

// Fallback publishes retry exhaustion.
func (p *Publisher) Fallback(attempts int, humanMessage string) {
	p.publish(SubjectRetryFallback, FallbackEvent{
		Attempts:     attempts,
		HumanMessage: humanMessage,
		At:           time.Now(),
	})
}

// publish is best-effort; a failed publish is logged, never surfaced,
// so GUI telemetry can never break validation.
func (p *Publisher) publish(subject string, payload any) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("Encode event failed", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("Publish event failed", "subject", subject, "error", err)
	}
}
