package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/polyglot-runner/internal/corpus"
)

var validateCorpus string

// validateCmd checks config and corpus without touching the backend.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and question corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if validateCorpus != "" {
			cfg.CorpusPath = validateCorpus
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		questions, err := corpus.Load(cfg.CorpusPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		order, counts := corpus.Categories(questions)
		fmt.Fprintf(out, "%s: %d questions in %d categories\n", cfg.CorpusPath, len(questions), len(order))
		for _, c := range order {
			fmt.Fprintf(out, "  %-24s %d\n", c, counts[c])
		}
		if cfg.ExpectedQuestions > 0 && len(questions) != cfg.ExpectedQuestions {
			fmt.Fprintf(out, "warning: expected %d questions, found %d\n", cfg.ExpectedQuestions, len(questions))
		}
		fmt.Fprintf(out, "models: %d, backend: %s (%s)\n", len(cfg.Models), cfg.Backend, cfg.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateCorpus, "corpus", "", "Path to the question corpus (JSON or YAML)")
}
