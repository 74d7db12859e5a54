package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// validateCmd validates an entity document from a JSON file without
// saving anything.
func validateCmd(configPath *string) *cobra.Command {
	var templateID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <file.json>",
		Short: "Validate an entity document against a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read entity file: %w", err)
			}
			var data map[string]any
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("parse entity file: %w", err)
			}

			tid := templateID
			if tid == "" {
				if s, ok := data["template_id"].(string); ok {
					tid = s
				}
			}
			if tid == "" {
				return fmt.Errorf("no template: pass --template or include template_id in the document")
			}

			result := a.pipeline.ValidateEntity(data, tid)
			a.events.ValidationResult(tid, "", result)

			if asJSON {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), result.HumanMessage)
			}

			if !result.Passed {
				return fmt.Errorf("validation failed with %d error(s)", result.ErrorCount())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateID, "template", "t", "", "template identifier (defaults to the document's template_id)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")

	return cmd
}
