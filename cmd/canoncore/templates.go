package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// templatesCmd lists known templates or shows one template's compiled
// constraints.
func templatesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates [template-id]",
		Short: "List known templates or inspect one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if len(args) == 0 {
				ids := a.compiler.KnownTemplates()
				if len(ids) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No templates found under %s\n", a.cfg.World.SchemaDir)
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}

			model, err := a.compiler.GetModel(args[0])
			if err != nil {
				return fmt.Errorf("load template %s: %w", args[0], err)
			}

			out, err := json.MarshalIndent(map[string]any{
				"template_id": model.TemplateID,
				"title":       model.Title,
				"constraints": model.ConstraintHints(),
				"defaults":    model.Defaults(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return cmd
}
