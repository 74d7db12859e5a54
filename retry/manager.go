// Package retry drives bounded regeneration loops against the
// generation service. Each failed validation escalates the constraint
// strength of the next attempt; when the budget is exhausted the loop
// falls back to manual entry.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomworks/canoncore/llm"
	"github.com/loomworks/canoncore/pipeline"
)

// MaxRetries is the fixed regeneration budget per request. The initial
// send does not count against it.
const MaxRetries = 3

// escalations are prepended to the regenerated prompt, one per retry,
// in increasing order of strictness.
var escalations = [MaxRetries]string{
	"Your previous response did not pass validation. Review the issues below and correct them while keeping the rest of your answer intact.",

	"STRICT MODE: Respond with a single JSON object that exactly matches the template fields. Include every required field. Do not invent fields the template does not declare.",

	"FINAL ATTEMPT: Produce the smallest response that can pass validation. Fill only the required fields with safe, conservative values and omit everything optional.",
}

// Sender abstracts the generation-service client.
type Sender interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// ValidateFunc checks one generation response. Callers choose the
// pipeline entry point that matches the request (entity, options, or
// free text).
type ValidateFunc func(content string) *pipeline.ValidationResult

// Request describes a retry-driven generation call.
type Request struct {
	// Prompt is the original user request text. It is re-sent verbatim
	// on every attempt, behind the escalation and feedback sections.
	Prompt string

	// SystemInstructions is the base system message. Retries append a
	// retry-attempt notice to it.
	SystemInstructions string

	// History is prior conversation context, if any.
	History []llm.Message

	// Temperature and MaxTokens pass through to the client.
	Temperature *float64
	MaxTokens   int

	// Validate checks each response. Required.
	Validate ValidateFunc
}

// State is the per-request mutable record threaded across attempts.
type State struct {
	// Attempt counts issued retries. 0 means only the initial send has
	// happened.
	Attempt int

	// OriginalRequest is the unmodified prompt.
	OriginalRequest string

	// SystemInstructions is the base system message.
	SystemInstructions string

	// History is the conversation accumulated across attempts.
	History []llm.Message

	// LastResult is the most recent validation outcome.
	LastResult *pipeline.ValidationResult

	// FellBack is set permanently once the budget is exhausted.
	FellBack bool
}

// Outcome is the terminal result of a retry-driven send.
type Outcome struct {
	// Response is the last generation response, nil only when the first
	// send failed at the transport level.
	Response *llm.Response

	// Result is the last validation result.
	Result *pipeline.ValidationResult

	// State is the final retry state.
	State *State

	// FellBack indicates the budget was exhausted without a passing
	// response; the caller should present manual entry.
	FellBack bool

	// Invocations counts generation-service calls made.
	Invocations int
}

// AttemptHook observes each validated attempt. attempt is 0 for the
// initial send.
type AttemptHook func(attempt, maxRetries int, result *pipeline.ValidationResult)

// Manager runs the send/validate/escalate state machine.
type Manager struct {
	client     Sender
	logger     *slog.Logger
	maxRetries int
	onAttempt  AttemptHook
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMaxRetries overrides the retry budget. Intended for tests.
func WithMaxRetries(n int) Option {
	return func(m *Manager) {
		m.maxRetries = n
	}
}

// WithAttemptHook registers an observer called after each validated
// attempt. Used to surface retry progress to the GUI.
func WithAttemptHook(hook AttemptHook) Option {
	return func(m *Manager) {
		m.onAttempt = hook
	}
}

// NewManager creates a retry manager over the given client.
func NewManager(client Sender, opts ...Option) *Manager {
	m := &Manager{
		client:     client,
		logger:     slog.Default(),
		maxRetries: MaxRetries,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxAttempts returns the retry budget.
func (m *Manager) MaxAttempts() int {
	return m.maxRetries
}

// SendWithValidation sends a request and regenerates on validation
// failure, up to the retry budget. Transport errors abort the loop
// immediately without consuming an attempt and are returned as errors;
// validation exhaustion is not an error, it is a fallback outcome.
func (m *Manager) SendWithValidation(ctx context.Context, req Request) (*Outcome, error) {
	if req.Validate == nil {
		return nil, fmt.Errorf("validate function is required")
	}

	state := &State{
		OriginalRequest:    req.Prompt,
		SystemInstructions: req.SystemInstructions,
		History:            append([]llm.Message(nil), req.History...),
	}

	prompt := req.Prompt
	system := req.SystemInstructions
	invocations := 0

	for {
		resp, err := m.client.Complete(ctx, llm.Request{
			Messages:    buildMessages(system, state.History, prompt),
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			// Transport failures are not validation failures. Abort
			// without touching the attempt counter so a recovered
			// connection gets the full budget.
			return nil, fmt.Errorf("generation service: %w", err)
		}
		invocations++

		result := req.Validate(resp.Content)
		if strings.TrimSpace(resp.Content) == "" {
			result = emptyResponseResult()
		}
		state.LastResult = result

		if m.onAttempt != nil {
			m.onAttempt(state.Attempt, m.maxRetries, result)
		}

		if result.Passed {
			m.logger.Debug("Generation passed validation",
				"attempt", state.Attempt,
				"invocations", invocations)
			return &Outcome{
				Response:    resp,
				Result:      result,
				State:       state,
				Invocations: invocations,
			}, nil
		}

		if !m.shouldRetry(state) {
			state.FellBack = true
			m.logger.Warn("Retry budget exhausted, falling back to manual entry",
				"attempts", state.Attempt,
				"invocations", invocations)
			return &Outcome{
				Response:    resp,
				Result:      result,
				State:       state,
				FellBack:    true,
				Invocations: invocations,
			}, nil
		}

		state.Attempt++
		// The sent prompt travels with its draft so the rebuilt
		// conversation keeps alternating user/assistant turns; providers
		// that hoist the system message out require a user turn first.
		state.History = append(state.History,
			llm.Message{Role: "user", Content: prompt},
			llm.Message{Role: "assistant", Content: resp.Content})

		prompt = m.escalatedPrompt(state.Attempt, result, req.Prompt)
		system = m.escalatedSystem(req.SystemInstructions, state.Attempt)

		m.logger.Info("Validation failed, regenerating",
			"attempt", state.Attempt,
			"max_retries", m.maxRetries,
			"errors", result.ErrorCount())
	}
}

// shouldRetry requires a failed validation that asked for a retry and
// remaining budget.
func (m *Manager) shouldRetry(state *State) bool {
	if state.LastResult == nil || !state.LastResult.NeedsRetry {
		return false
	}
	return state.Attempt < m.maxRetries
}

// escalatedPrompt assembles the retry prompt: escalation text, then the
// validation feedback, then the original request.
func (m *Manager) escalatedPrompt(attempt int, result *pipeline.ValidationResult, original string) string {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(escalations) {
		idx = len(escalations) - 1
	}

	var b strings.Builder
	b.WriteString(escalations[idx])
	b.WriteString("\n\n")
	b.WriteString(formatFeedback(result))
	b.WriteString("\n\nOriginal request:\n")
	b.WriteString(original)
	return b.String()
}

// escalatedSystem appends the retry-attempt notice to the base system
// instructions.
func (m *Manager) escalatedSystem(base string, attempt int) string {
	notice := fmt.Sprintf("RETRY ATTEMPT %d/%d", attempt, m.maxRetries)
	if base == "" {
		return notice
	}
	return base + "\n\n" + notice
}

// formatFeedback renders the validation issues for the model.
func formatFeedback(result *pipeline.ValidationResult) string {
	var b strings.Builder
	b.WriteString("Validation feedback:\n")
	for _, issue := range result.Issues {
		b.WriteString("- ")
		if issue.Field != "" {
			b.WriteString(issue.Field)
			b.WriteString(": ")
		}
		b.WriteString(issue.Message)
		b.WriteString("\n")
	}
	if result.HumanMessage != "" {
		b.WriteString("\n")
		b.WriteString(result.HumanMessage)
	}
	return b.String()
}

// emptyResponseResult marks an empty accumulated response as an
// automatic validation failure rather than a silent pass.
func emptyResponseResult() *pipeline.ValidationResult {
	return &pipeline.ValidationResult{
		Issues: []pipeline.Issue{{
			Layer:    pipeline.LayerDrift,
			Severity: pipeline.SeverityError,
			Message:  "Generation service returned an empty response",
		}},
		NeedsRetry:   true,
		HumanMessage: "The response was empty. Nothing was changed.",
	}
}

// buildMessages assembles the chat payload for one attempt.
func buildMessages(system string, history []llm.Message, prompt string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	if system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: prompt})
	return messages
}
