// Package main provides the canoncore binary entry point. Canoncore is
// the consistency-validation core of a worldbuilding studio: it checks
// entity documents against templates, cross-reference rules, and the
// established canon, and drives validated regeneration loops.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	// Register generation providers via init()
	_ "github.com/loomworks/canoncore/llm/providers"
)

const (
	Version = "0.1.0"
	appName = "canoncore"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     appName,
		Short:   "Worldbuilding consistency-validation core",
		Version: Version,
		Long: `Canoncore validates worldbuilding entities against declarative templates,
cross-reference and numeric rules, and the established canon, and drives
bounded regeneration loops against a generation service.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")

	cmd.AddCommand(
		validateCmd(&configPath),
		checkCmd(&configPath),
		generateCmd(&configPath),
		templatesCmd(&configPath),
		graphCmd(&configPath),
	)

	return cmd
}
