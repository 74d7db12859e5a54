package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// checkCmd runs the full three-layer check over a stored entity.
func checkCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check <entity-id>",
		Short: "Run the full layered consistency check over a stored entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			entity, err := a.store.LoadEntity(args[0])
			if err != nil {
				return fmt.Errorf("load entity %s: %w", args[0], err)
			}

			result := a.pipeline.CheckEntity(entity)

			if asJSON {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), result.HumanMessage)
				if result.NeedsLLMReview {
					fmt.Fprintln(cmd.OutOrStdout())
					fmt.Fprintln(cmd.OutOrStdout(), "Deep review suggested. Prompt:")
					fmt.Fprintln(cmd.OutOrStdout(), result.ReviewPrompt)
				}
			}

			if !result.Passed {
				return fmt.Errorf("consistency check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")

	return cmd
}
