/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes one benchmark run: every corpus question, both languages, every target model.

REQUIREMENTS:
  User-specified:
  - Run the benchmark.
  - specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config.
  - Ctrl-C must stop dispatch and still leave a valid, flushed CSV.

ARCHITECTURE INTEGRATION:
  - Calls: internal/corpus.Load, internal/engine.Sequencer, internal/publish
  - Uses: internal/config, internal/output, internal/observability

ERROR HANDLING:
  - Returns error if config, corpus or sinks cannot be set up, or if the sequencer reports a fatal error.
  - Metrics and publish failures are logged, never fatal; the local CSV is the result of record.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Validate -> Corpus -> Sinks -> Sequencer -> Publish.

USAGE:
  polyglot-runner run --models llama3:8b@1,falcon:7b-instruct@2

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go
  - internal/engine/sequencer.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/daryltucker/polyglot-runner/internal/config"
	"github.com/daryltucker/polyglot-runner/internal/corpus"
	"github.com/daryltucker/polyglot-runner/internal/engine"
	"github.com/daryltucker/polyglot-runner/internal/observability"
	"github.com/daryltucker/polyglot-runner/internal/output"
	"github.com/daryltucker/polyglot-runner/internal/publish"
)

var (
	urlOverride     string
	backendOverride string
	modelsOverride  []string
	corpusOverride  string
	outputOverride  string
	workersOverride int
	excludeOverride []string
	noProgress      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bilingual benchmark",
	Long: `Runs every corpus question in English and Hindi against each target model.
The process follows a strict protocol:
1. Discovery: Resolves the target models against what the backend reports.
2. Warm-up: Loads each model with a short prompt before it is scored.
3. Benchmarking: Asks all questions on a small worker pool and records each answer as it completes.

Models run one at a time, smallest priority first. Results are written to
<output-dir>/<prefix>_results_<YYYYmmdd_HHMMSS>.csv (and .jsonl) and flushed after every row.`,
	Example: `  # Run with defaults (uses polyglot_runner.yaml if present)
  polyglot-runner run

  # Two models, smaller one first
  polyglot-runner run --models phi3:mini@1,llama3:8b@2

  # OpenAI-compatible server
  polyglot-runner run --backend openai --url http://localhost:8000/v1 --models qwen2.5-7b-instruct

  # Different corpus and output directory
  polyglot-runner run --corpus ./corpora/delhi.json -o ./benchmarks`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// 2. Overrides
		if err := applyRunOverrides(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		closer := setupLogging(cfg, true)
		defer closer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 3. Execution
		return execute(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&urlOverride, "url", "", "Backend base URL")
	runCmd.Flags().StringVar(&backendOverride, "backend", "", "Backend type: ollama or openai")
	runCmd.Flags().StringSliceVar(&modelsOverride, "models", nil, "Comma-separated models as name[@priority]; lower priority runs first")
	runCmd.Flags().StringVar(&corpusOverride, "corpus", "", "Path to the question corpus (JSON or YAML)")
	runCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for results (CSV/JSONL)")
	runCmd.Flags().IntVar(&workersOverride, "workers", 0, "Concurrent questions per model")
	runCmd.Flags().StringSliceVar(&excludeOverride, "exclude", nil, "Comma-separated list of substrings to exclude from model names")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if urlOverride != "" {
		cfg.URL = urlOverride
	}
	if backendOverride != "" {
		cfg.Backend = backendOverride
	}
	if len(modelsOverride) > 0 {
		targets, err := config.ParseModelTargets(modelsOverride)
		if err != nil {
			return fmt.Errorf("--models: %w", err)
		}
		cfg.Models = targets
	}
	if corpusOverride != "" {
		cfg.CorpusPath = corpusOverride
	}
	if outputOverride != "" {
		cfg.OutputDir = outputOverride
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workersOverride
	}
	if len(excludeOverride) > 0 {
		cfg.Exclude = excludeOverride
	}
	return nil
}

func execute(ctx context.Context, cfg *config.Config) error {
	runID := uuid.NewString()
	startedAt := time.Now()
	log := output.Logger.With("run_id", runID)

	shutdownTrace, err := observability.InitTracing(ctx, cfg.Tracing, "polyglot-runner", runID)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTrace(sctx)
	}()

	questions, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		return err
	}
	log.Info("Loaded questions", "count", len(questions), "corpus", cfg.CorpusPath)
	if cfg.ExpectedQuestions > 0 && len(questions) != cfg.ExpectedQuestions {
		log.Warn("Unexpected question count", "expected", cfg.ExpectedQuestions, "found", len(questions))
	}

	backend, err := engine.NewBackend(cfg)
	if err != nil {
		return err
	}

	sink, files, err := output.OpenRunSinks(cfg.OutputDir, cfg.OutputPrefix, startedAt)
	if err != nil {
		return err
	}
	sinkClosed := false
	defer func() {
		if !sinkClosed {
			sink.Close()
		}
	}()
	log.Info("Writing results", "csv", files.CSV, "jsonl", files.JSONL)

	metrics := observability.NewMetrics()
	seq := newSequencer(cfg, backend, sink, metrics, runID, log)

	summary, runErr := seq.Run(ctx, cfg.Models, questions)

	sinkClosed = true
	if err := sink.Close(); err != nil {
		log.Error("Failed to close result files", "error", err)
	}
	if discardEmptyRun(runErr) {
		if err := files.Remove(); err != nil {
			log.Warn("Failed to remove empty result files", "error", err)
		} else {
			log.Info("Removed empty result files", "csv", files.CSV, "jsonl", files.JSONL)
		}
		return runErr
	}

	elapsed := time.Since(startedAt)
	log.Info("Evaluation finished",
		"records", summary.Records(),
		"models", len(summary.Models),
		"minutes", fmt.Sprintf("%.2f", elapsed.Minutes()),
		"csv", files.CSV,
	)
	for _, m := range summary.Models {
		log.Info("Model summary", "model", m.Model, "status", m.Status, "records", m.Records, "partial", m.Partial, "failed", m.Failed)
	}

	artifacts := files.Paths()
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Error("Failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		} else {
			artifacts = append(artifacts, cfg.Metrics.Textfile)
		}
	}

	if cfg.Publish.Enabled() && summary.Records() > 0 {
		publishResults(cfg.Publish, runID, artifacts, log)
	}

	return runErr
}

// discardEmptyRun reports whether the run ended before any model was evaluated,
// leaving header-only result files behind.
func discardEmptyRun(err error) bool {
	return errors.Is(err, engine.ErrBackendUnavailable) || errors.Is(err, engine.ErrNoModels)
}

func newSequencer(cfg *config.Config, backend engine.Backend, sink engine.RecordSink, metrics *observability.Metrics, runID string, log engine.Logger) *engine.Sequencer {
	opts := cfg.Options

	gate := &engine.WarmupGate{
		Backend:   backend,
		Prompt:    cfg.Warmup.Prompt,
		MaxTokens: cfg.Warmup.MaxTokens,
		Options:   opts,
		Policy:    engine.RetryPolicy{Retries: cfg.Warmup.Retries, Backoff: engine.Constant(cfg.Warmup.Delay.Std())},
		Log:       log,
		Metrics:   metrics,
	}

	dispatcher := &engine.Dispatcher{
		Backend:       backend,
		Options:       opts,
		EnglishPrompt: cfg.Prompts.English,
		HindiPrompt:   cfg.Prompts.Hindi,
		Policy:        engine.RetryPolicy{Retries: cfg.MaxRetries, Backoff: engine.Linear(cfg.RetryDelay.Std())},
		Workers:       cfg.Workers,
		RunID:         runID,
		Log:           log,
		Metrics:       metrics,
	}
	if w := engine.EffectiveWorkers(cfg.Workers); w != cfg.Workers {
		log.Warn("Worker count capped", "requested", cfg.Workers, "using", w)
	}

	seq := &engine.Sequencer{
		Backend:         backend,
		Gate:            gate,
		Dispatcher:      dispatcher,
		Sink:            sink,
		Exclude:         cfg.Exclude,
		MinFreeMemoryMB: int64(cfg.MinFreeMemoryMB),
		Memory:          engine.ProcMeminfo{},
		Log:             log,
	}
	if !noProgress {
		seq.NewProgress = newProgressBar
	}
	return seq
}

func newProgressBar(modelName string, total int) engine.Progress {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(fmt.Sprintf("Processing %s", modelName)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
}

func publishResults(cfg config.PublishConfig, runID string, files []string, log engine.Logger) {
	uploader, err := publish.NewUploader(cfg)
	if err != nil {
		log.Error("Publish disabled", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	objects, err := uploader.Upload(ctx, runID, files...)
	if err != nil {
		log.Error("Failed to publish results", "bucket", cfg.Bucket, "error", err)
		return
	}
	log.Info("Published results", "bucket", cfg.Bucket, "objects", len(objects))
}
