/*
PURPOSE:
  Defines the 'list-models' subcommand.
  Helps debug connectivity and model discovery.

REQUIREMENTS:
  User-specified:
  - List available models.

  Implementation-discovered:
  - Useful validation step before full run.
  - Shows which configured targets would be resolved, and in which order.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Backend.ListModels, engine.Resolve

ERROR HANDLING:
  - Returns the backend error if the URL is incorrect or the server is down.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  polyglot-runner list-models --url http://gpu-box:11434

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/client.go
  - internal/engine/sequencer.go

MAINTENANCE:
  - None.
*/

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/polyglot-runner/internal/engine"
)

var (
	listURL     string
	listBackend string
)

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List models available on the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listURL != "" {
			cfg.URL = listURL
		}
		if listBackend != "" {
			cfg.Backend = listBackend
		}
		closer := setupLogging(cfg, false)
		defer closer.Close()

		backend, err := engine.NewBackend(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Querying %s...\n", cfg.URL)
		models, err := backend.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Fprintf(out, "- %s\n", m)
		}

		resolved, missing := engine.Resolve(cfg.Models, engine.FilterExcluded(models, cfg.Exclude))
		if len(resolved) > 0 {
			fmt.Fprintln(out, "\nRun order:")
			for i, t := range resolved {
				fmt.Fprintf(out, "%d. %s (priority %d)\n", i+1, t.Name, t.Priority)
			}
		}
		for _, name := range missing {
			fmt.Fprintf(out, "! %s is configured but not available\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listModelsCmd)
	listModelsCmd.Flags().StringVar(&listURL, "url", "", "Backend base URL")
	listModelsCmd.Flags().StringVar(&listBackend, "backend", "", "Backend type: ollama or openai")
}
