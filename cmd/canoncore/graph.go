package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/canoncore/graphquery"
)

// graphCmd answers relationship-graph queries over the corpus.
func graphCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query the entity relationship graph",
	}

	cmd.AddCommand(
		graphNeighborsCmd(configPath),
		graphPathCmd(configPath),
		graphOrphansCmd(configPath),
		graphStatsCmd(configPath),
	)

	return cmd
}

func buildGraph(configPath string) (*app, *graphquery.Graph, error) {
	a, err := newApp(configPath)
	if err != nil {
		return nil, nil, err
	}
	entities, err := a.corpus.Corpus()
	if err != nil {
		a.close()
		return nil, nil, fmt.Errorf("load corpus: %w", err)
	}
	return a, graphquery.Build(entities), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func graphNeighborsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "neighbors <entity-id>",
		Short: "List entities related to one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, g, err := buildGraph(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return printJSON(cmd, g.Neighbors(args[0]))
		},
	}
}

func graphPathCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path <from-id> <to-id>",
		Short: "Find a shortest relationship path between two entities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, g, err := buildGraph(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			path := g.Path(args[0], args[1])
			if path == nil {
				return fmt.Errorf("no path between %s and %s", args[0], args[1])
			}
			return printJSON(cmd, path)
		},
	}
}

func graphOrphansCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List entities with no relationships",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, g, err := buildGraph(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return printJSON(cmd, g.Orphans())
		},
	}
}

func graphStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show relationship graph statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, g, err := buildGraph(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return printJSON(cmd, g.ComputeStats())
		},
	}
}
