package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loomworks/canoncore/canon"
	"github.com/loomworks/canoncore/llm"
	"github.com/loomworks/canoncore/pipeline"
	"github.com/loomworks/canoncore/retry"
)

// generateCmd drives a validated generation loop: prompt the generation
// service, validate the draft, escalate on failure, and save only a
// draft that passed.
func generateCmd(configPath *string) *cobra.Command {
	var templateID string
	var save bool

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate an entity draft with validated retries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateID == "" {
				return errors.New("--template is required")
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := llm.NewClient(a.cfg.Endpoint(),
				llm.WithLogger(a.logger),
				llm.WithTimeout(a.cfg.Generation.Timeout))
			manager := retry.NewManager(client,
				retry.WithLogger(a.logger),
				retry.WithMaxRetries(a.cfg.Validation.MaxRetries),
				retry.WithAttemptHook(a.events.RetryAttempt))

			temperature := a.cfg.Generation.Temperature
			outcome, err := manager.SendWithValidation(ctx, retry.Request{
				Prompt:             args[0],
				SystemInstructions: systemInstructions(a, templateID),
				Temperature:        &temperature,
				MaxTokens:          a.cfg.Generation.MaxTokens,
				Validate: func(content string) *pipeline.ValidationResult {
					return validateDraft(a, content, templateID)
				},
			})
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}

			if outcome.FellBack {
				a.events.Fallback(outcome.State.Attempt, outcome.Result.HumanMessage)
				fmt.Fprintln(cmd.OutOrStdout(), outcome.Result.HumanMessage)
				return fmt.Errorf("generation did not produce a valid entity after %d attempts; enter it manually", outcome.Invocations)
			}

			draft := llm.ExtractJSON(outcome.Response.Content)
			fmt.Fprintln(cmd.OutOrStdout(), draft)

			if save {
				var data map[string]any
				if err := json.Unmarshal([]byte(draft), &data); err != nil {
					return fmt.Errorf("parse validated draft: %w", err)
				}
				entity := canon.FromMap(data, templateID)
				if entity.Metadata.ID == "" {
					entity.Metadata.ID = uuid.New().String()
				}
				if err := a.store.SaveEntity(entity); err != nil {
					return fmt.Errorf("save entity: %w", err)
				}
				a.corpus.Invalidate()
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", entity.Metadata.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateID, "template", "t", "", "template identifier to generate against")
	cmd.Flags().BoolVar(&save, "save", false, "save the entity once it passes validation")

	return cmd
}

// systemInstructions builds the base system message from the template's
// constraints.
func systemInstructions(a *app, templateID string) string {
	base := "You are a worldbuilding assistant. Respond with a single JSON object for the requested entity."
	model, err := a.compiler.GetModel(templateID)
	if err != nil {
		return base
	}
	hints, err := json.Marshal(model.ConstraintHints())
	if err != nil {
		return base
	}
	return fmt.Sprintf("%s\nTemplate: %s\nConstraints: %s", base, templateID, hints)
}

// validateDraft extracts the JSON payload from a model response and
// runs it through the entity pipeline.
func validateDraft(a *app, content, templateID string) *pipeline.ValidationResult {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		// No structured payload at all; let the response validator
		// produce the drift/empty issues.
		return a.pipeline.ValidateResponse("")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return a.pipeline.ValidateResponse("")
	}
	return a.pipeline.ValidateEntity(data, templateID)
}
