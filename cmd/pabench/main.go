package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pabench/internal/attractor"
	"pabench/internal/config"
	"pabench/internal/dataset"
	"pabench/internal/forensic"
	"pabench/internal/report"
	"pabench/internal/runner"
	"pabench/internal/stats"
	"pabench/internal/tier"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// validate flags
	benchmarkName   string
	datasetPath     string
	policyPath      string
	outputDir       string
	privacyMode     string
	validationMode  string
	limit           int
	quick           bool
	storeEmbeddings bool
	provider        string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pabench",
	Short: "pabench - Primacy Attractor validation harness",
	Long: `pabench validates a content-governance layer against safety benchmarks.

It embeds a policy configuration into a Primacy Attractor reference vector,
scores each benchmark item's embedding against it (cosine fidelity), and
classifies every item into a three-tier intervention hierarchy. Each run is
recorded as a strict-ordered forensic session with a replayable trace.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// validateCmd runs one or more benchmarks against a policy.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run a benchmark through the validation pipeline",
	Long: `Loads a benchmark dataset, establishes the Primacy Attractor from the
policy configuration, and validates every item in a forensic session.

Examples:
  pabench validate --benchmark harmbench --dataset data/harmbench.csv --pa-config policy.json
  pabench validate --benchmark xstest --dataset data/xstest.csv --pa-config policy.json --mode contrastive
  pabench validate --benchmark sb243 --dataset data/sb243.csv --pa-config policy.json --quick`,
	RunE: runValidate,
}

// reportCmd rebuilds the aggregate report from a stored session.
var reportCmd = &cobra.Command{
	Use:   "report [session-id]",
	Short: "Rebuild the aggregate report from a stored session",
	Long: `Loads a session and its turn sequence from the trace store and
regenerates the full artifact set without re-invoking the embedding
provider. Thresholds and sweep parameters come from the run config.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

// sweepCmd recomputes the threshold sweep from a stored session.
var sweepCmd = &cobra.Command{
	Use:   "sweep [session-id]",
	Short: "Recompute the threshold-sensitivity sweep from a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSweep,
}

// sessionsCmd lists stored sessions.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored forensic sessions",
	RunE:  runSessions,
}

// patextCmd prints the canonical attractor text for a policy config.
var patextCmd = &cobra.Command{
	Use:   "patext [policy-config]",
	Short: "Print the canonical Primacy Attractor text for a policy",
	Long: `Renders the policy configuration into the exact text that would be
embedded as the Primacy Attractor. Useful for verifying that a config
edit changes the attractor the way you expect.`,
	Args: cobra.ExactArgs(1),
	RunE: runPAText,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pabench.yaml", "Run configuration file")

	validateCmd.Flags().StringVar(&benchmarkName, "benchmark", "", "Benchmark adapter: "+strings.Join(benchmarkNames(), ", "))
	validateCmd.Flags().StringVar(&datasetPath, "dataset", "", "Path to the benchmark dataset")
	validateCmd.Flags().StringVar(&policyPath, "pa-config", "", "Policy configuration JSON (required)")
	validateCmd.Flags().StringVar(&outputDir, "output-dir", "", "Artifact output directory (overrides config)")
	validateCmd.Flags().StringVar(&privacyMode, "privacy-mode", "", "Trace privacy mode: full, hashed, deltas_only")
	validateCmd.Flags().StringVar(&validationMode, "mode", "", "Validation mode: adversarial, contrastive")
	validateCmd.Flags().IntVar(&limit, "limit", 0, "Validate at most N items (0 = all)")
	validateCmd.Flags().BoolVar(&quick, "quick", false, "Quick run: first 10 items")
	validateCmd.Flags().BoolVar(&storeEmbeddings, "store-embeddings", false, "Archive raw embedding vectors in the trace store")
	validateCmd.Flags().StringVar(&provider, "provider", "", "Embedding provider: ollama, genai (overrides config)")
	_ = validateCmd.MarkFlagRequired("benchmark")
	_ = validateCmd.MarkFlagRequired("dataset")
	_ = validateCmd.MarkFlagRequired("pa-config")

	reportCmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory holding the trace store")
	reportCmd.Flags().StringVar(&benchmarkName, "benchmark", "", "Benchmark name for artifact filenames (defaults to the session id)")
	sweepCmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory holding the trace store")
	sessionsCmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory holding the trace store")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(patextCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// VALIDATE
// =============================================================================

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loader, ok := dataset.Loaders[benchmarkName]
	if !ok {
		return fmt.Errorf("unknown benchmark %q (known: %s)", benchmarkName, strings.Join(benchmarkNames(), ", "))
	}

	items, err := loader(datasetPath)
	if err != nil {
		return fmt.Errorf("failed to load %s dataset: %w", benchmarkName, err)
	}
	if len(items) == 0 {
		return fmt.Errorf("dataset %s contains no items", datasetPath)
	}
	logger.Info("dataset loaded",
		zap.String("benchmark", benchmarkName),
		zap.Int("items", len(items)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(cfg, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding provider unavailable: %w", err)
	}

	pa, err := r.BuildAttractor(ctx, policyPath)
	if err != nil {
		return fmt.Errorf("failed to establish primacy attractor: %w", err)
	}

	res, err := r.RunBenchmark(ctx, benchmarkName, items, pa)
	if err != nil {
		return err
	}

	printSummary(res)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// CLI flags override the config file.
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if privacyMode != "" {
		cfg.Validation.PrivacyMode = string(forensic.ParsePrivacyMode(privacyMode))
	}
	if validationMode != "" {
		cfg.Validation.Mode = validationMode
	}
	if provider != "" {
		cfg.Embedding.Provider = provider
	}
	if limit > 0 {
		cfg.Validation.Limit = limit
	}
	if quick {
		cfg.Validation.Limit = 10
	}
	if storeEmbeddings {
		cfg.Validation.StoreEmbeddings = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printSummary(res *runner.Result) {
	m := res.Report.KeyMetrics

	fmt.Printf("\n=== %s ===\n", res.Benchmark)
	fmt.Printf("Session:    %s\n", res.SessionID)
	fmt.Printf("Items:      %d (blocked %d, allowed %d, failed %d)\n",
		m.TotalItems, m.Blocked, m.Allowed, m.FailedTurns)
	fmt.Printf("VDR:        %.1f%%  (99%% CI block rate: [%.3f, %.3f])\n",
		m.ViolationDefenseRate, m.BlockRate.Lower, m.BlockRate.Upper)
	fmt.Printf("ASR:        %.1f%%  (99%% CI upper bound: %.1f%%)\n",
		m.AttackSuccessRate, m.ASRUpperBound)
	if res.Report.Metadata.Mode == tier.ModeContrastive {
		fmt.Printf("False pos:  %d   False neg: %d\n", m.FalsePositives, m.FalseNegatives)
	}
	d := res.Report.TierDist
	fmt.Printf("Tiers:      T1=%d (%.1f%%)  T2=%d (%.1f%%)  T3=%d (%.1f%%)\n",
		d.Tier1, d.Tier1Pct, d.Tier2, d.Tier2Pct, d.Tier3, d.Tier3Pct)
	fmt.Printf("Artifacts:  %s\n", res.Artifacts.FullJSON)
	fmt.Printf("Trace:      %s\n", res.TracePath)
}

// =============================================================================
// REPORT, SWEEP & SESSIONS
// =============================================================================

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := forensic.NewStore(outputDir)
	if err != nil {
		return err
	}
	defer store.Close()

	sessionID := args[0]
	snap, err := store.LoadSession(sessionID)
	if err != nil {
		return err
	}
	turns, err := store.LoadTurns(sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("session %s: %w", sessionID, stats.ErrEmptySession)
	}

	benchmark := benchmarkName
	if benchmark == "" {
		benchmark = sessionID
	}

	rep := report.Build(*snap, turns, report.Options{
		Benchmark:       benchmark,
		Mode:            tier.Mode(cfg.Validation.Mode),
		Thresholds:      cfg.Thresholds,
		SweepCandidates: cfg.Sweep.Candidates,
		SweepGap:        cfg.Sweep.Tier2Gap,
	})

	arts, err := report.WriteArtifacts(outputDir, benchmark, rep)
	if err != nil {
		return err
	}

	fmt.Printf("Rebuilt report for session %s (%d turns)\n", sessionID, len(turns))
	fmt.Printf("  %s\n  %s\n  %s\n", arts.FullJSON, arts.SummaryJSON, arts.FidelityCSV)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	store, err := forensic.NewStore(outputDir)
	if err != nil {
		return err
	}
	defer store.Close()

	sessionID := args[0]
	turns, err := store.LoadTurns(sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("session %s: %w", sessionID, stats.ErrEmptySession)
	}

	rows := stats.Sweep(turns, stats.DefaultSweepCandidates, stats.DefaultTier2Gap)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "THRESHOLD\tTIER1\tTIER2\tTIER3")
	for _, row := range rows {
		fmt.Fprintf(w, "%.2f\t%d (%.1f%%)\t%d (%.1f%%)\t%d (%.1f%%)\n",
			row.Threshold,
			row.Tier1Count, row.Tier1Pct,
			row.Tier2Count, row.Tier2Pct,
			row.Tier3Count, row.Tier3Pct)
	}
	return w.Flush()
}

func runSessions(cmd *cobra.Command, args []string) error {
	store, err := forensic.NewStore(outputDir)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no stored sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tPRIVACY\tMODEL\tSTARTED\tTURNS")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.PrivacyMode, s.ModelDescriptor,
			s.StartedAt.Format(time.RFC3339), s.TurnCount)
	}
	return w.Flush()
}

// =============================================================================
// PA TEXT
// =============================================================================

func runPAText(cmd *cobra.Command, args []string) error {
	policy, err := attractor.LoadPolicyConfig(args[0])
	if err != nil {
		return err
	}
	text, err := attractor.BuildText(policy)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func benchmarkNames() []string {
	names := make([]string, 0, len(dataset.Loaders))
	for name := range dataset.Loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
