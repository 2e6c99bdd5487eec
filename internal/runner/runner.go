// Package runner drives a validation run end to end: it builds the
// primacy attractor once, then walks each benchmark's items through
// the forensic session protocol, scoring fidelity and classifying
// each item against the attractor. Multiple benchmarks run as
// independent sessions that share the same attractor.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pabench/internal/attractor"
	"pabench/internal/config"
	"pabench/internal/dataset"
	"pabench/internal/embedding"
	"pabench/internal/fidelity"
	"pabench/internal/forensic"
	"pabench/internal/report"
	"pabench/internal/stats"
	"pabench/internal/tier"
)

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes validation sessions against one attractor.
type Runner struct {
	cfg        *config.Config
	engine     embedding.Engine
	classifier *tier.Classifier
	logger     *zap.Logger
	store      *forensic.Store
}

// New assembles a runner from a run configuration. The embedding
// engine is wrapped in retry; nil logger means no logging.
func New(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	inner, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}

	delay, err := time.ParseDuration(cfg.Embedding.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid retry delay %q: %w", cfg.Embedding.RetryDelay, err)
	}
	engine := embedding.NewRetryEngine(inner, cfg.Embedding.MaxAttempts, delay, logger)

	mode := tier.Mode(cfg.Validation.Mode)

	r := &Runner{
		cfg:        cfg,
		engine:     engine,
		classifier: tier.NewClassifier(cfg.Thresholds, mode),
		logger:     logger,
	}

	if cfg.Output.Store {
		store, err := forensic.NewStore(cfg.Output.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace store: %w", err)
		}
		r.store = store
	}
	return r, nil
}

// Close releases the runner's resources.
func (r *Runner) Close() error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	if closer, ok := r.engine.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// HealthCheck verifies the embedding provider is reachable before a
// run burns through a benchmark.
func (r *Runner) HealthCheck(ctx context.Context) error {
	if hc, ok := r.engine.(embedding.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// BuildAttractor embeds the policy configuration once. The result is
// shared read-only across all sessions of the run.
func (r *Runner) BuildAttractor(ctx context.Context, policyPath string) (*attractor.Attractor, error) {
	policy, err := attractor.LoadPolicyConfig(policyPath)
	if err != nil {
		return nil, err
	}

	pa, err := attractor.Build(ctx, policy, r.engine)
	if err != nil {
		return nil, err
	}

	r.logger.Info("primacy attractor established",
		zap.String("policy", pa.PolicyName),
		zap.Int("dimensions", len(pa.Embedding)),
		zap.String("fingerprint", pa.Fingerprint))
	return pa, nil
}

// =============================================================================
// SESSION EXECUTION
// =============================================================================

// Result is the outcome of one benchmark session.
type Result struct {
	Benchmark string
	SessionID string
	TracePath string
	Report    *report.Report
	Artifacts report.Artifacts
}

// RunBenchmark validates one benchmark's items in a fresh forensic
// session and writes the session's artifact set. Per-item embedding
// failures fail that turn and the run continues; only protocol or
// setup errors abort the session.
func (r *Runner) RunBenchmark(ctx context.Context, benchmark string, items []dataset.Item, pa *attractor.Attractor) (*Result, error) {
	if limit := r.cfg.Validation.Limit; limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	sessionID := fmt.Sprintf("%s-%s", benchmark, uuid.NewString()[:8])
	privacyMode := forensic.ParsePrivacyMode(r.cfg.Validation.PrivacyMode)

	traceDir := r.cfg.Output.TraceDir
	if traceDir == "" {
		traceDir = r.cfg.Output.Dir
	}
	trace, err := forensic.NewTraceWriter(traceDir, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace: %w", err)
	}
	defer trace.Close()

	opts := []forensic.Option{
		forensic.WithTraceWriter(trace),
		forensic.WithLogger(r.logger),
	}
	if r.store != nil {
		opts = append(opts, forensic.WithStore(r.store))
	}
	session := forensic.NewSession(sessionID, privacyMode, opts...)

	if err := session.Start(r.engine.Name()); err != nil {
		return nil, err
	}
	if err := session.RecordPAEstablished(forensic.PARecord{
		PolicyName:    pa.PolicyName,
		Fingerprint:   pa.Fingerprint,
		EstablishedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	r.logger.Info("session started",
		zap.String("benchmark", benchmark),
		zap.String("session_id", sessionID),
		zap.Int("items", len(items)),
		zap.String("privacy_mode", string(privacyMode)))

	started := time.Now()
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.runTurn(ctx, session, i+1, item, pa); err != nil {
			return nil, fmt.Errorf("turn %d (%s): %w", i+1, item.ID, err)
		}
		if (i+1)%50 == 0 {
			r.logger.Info("progress",
				zap.String("benchmark", benchmark),
				zap.Int("completed", i+1),
				zap.Int("total", len(items)))
		}
	}

	if err := session.End(time.Since(started), "benchmark complete"); err != nil {
		return nil, err
	}

	rep := report.Build(session.Snapshot(), session.Turns(), report.Options{
		Benchmark:       benchmark,
		Mode:            r.classifier.Mode,
		Thresholds:      r.cfg.Thresholds,
		SweepCandidates: r.sweepCandidates(),
		SweepGap:        r.cfg.Sweep.Tier2Gap,
		TraceFile:       trace.Path(),
	})

	arts, err := report.WriteArtifacts(r.cfg.Output.Dir, benchmark, rep)
	if err != nil {
		return nil, err
	}

	r.logger.Info("session complete",
		zap.String("benchmark", benchmark),
		zap.Int("blocked", rep.KeyMetrics.Blocked),
		zap.Int("total", rep.KeyMetrics.TotalItems),
		zap.Float64("vdr_pct", rep.KeyMetrics.ViolationDefenseRate))

	return &Result{
		Benchmark: benchmark,
		SessionID: sessionID,
		TracePath: trace.Path(),
		Report:    rep,
		Artifacts: arts,
	}, nil
}

// runTurn walks one item through the turn protocol. Embedding
// failures after retry exhaustion fail the turn; protocol errors
// propagate.
func (r *Runner) runTurn(ctx context.Context, session *forensic.Session, n int, item dataset.Item, pa *attractor.Attractor) error {
	if err := session.BeginTurn(n, forensic.TurnInput{
		ItemID:      item.ID,
		Text:        item.Text,
		Category:    item.Category,
		Subcategory: item.Subcategory,
		Severity:    item.Severity,
		Expected:    item.Expected,
	}); err != nil {
		return err
	}

	vec, err := r.engine.Embed(ctx, item.Text)
	if err != nil {
		r.logger.Warn("embedding failed, turn marked failed",
			zap.String("item", item.ID), zap.Error(err))
		return session.FailTurn(n, err.Error())
	}

	fid, warning := r.score(vec, pa, item.ID)

	if err := session.RecordFidelity(n, fid, fidelity.EmbeddingFingerprint(vec), warning); err != nil {
		return err
	}

	d := r.classifier.Classify(fid, item.Severity, item.Expected)
	if err := session.RecordIntervention(n, forensic.InterventionRecord{
		Tier:             d.Tier,
		TierName:         d.TierName,
		Action:           d.Action,
		Blocked:          d.Blocked,
		Rationale:        d.Rationale,
		SeverityOverride: d.SeverityOverride,
		FalsePositive:    d.FalsePositive,
		FalseNegative:    d.FalseNegative,
	}); err != nil {
		return err
	}

	if r.cfg.Validation.StoreEmbeddings && r.store != nil {
		if err := r.store.SaveEmbedding(session.ID(), item.ID, vec); err != nil {
			r.logger.Warn("failed to archive embedding",
				zap.String("item", item.ID), zap.Error(err))
		}
	}

	r.logger.Debug("item validated",
		zap.Int("turn", n),
		zap.String("item", item.ID),
		zap.String("category", item.Category),
		zap.Float64("fidelity", fid),
		zap.Int("tier", d.Tier),
		zap.String("action", d.Action))

	return session.CompleteTurn(n)
}

// score computes fidelity with the provider-anomaly fallback: a
// zero-magnitude or dimension-mismatched embedding scores 0.0 with a
// recorded warning instead of failing the turn, so anomalous items
// still land in a tier and count toward the aggregates.
func (r *Runner) score(vec []float32, pa *attractor.Attractor, itemID string) (float64, string) {
	fid, err := fidelity.Score(vec, pa.Embedding)
	if err == nil {
		return fid, ""
	}

	var dim *fidelity.DimensionMismatchError
	if errors.As(err, &dim) {
		r.logger.Warn("embedding dimension mismatch, fidelity forced to 0",
			zap.String("item", itemID),
			zap.Int("item_dim", dim.ItemDim),
			zap.Int("attractor_dim", dim.AttractorDim))
		return 0, fmt.Sprintf("embedding dimension %d does not match attractor %d",
			dim.ItemDim, dim.AttractorDim)
	}

	if errors.Is(err, fidelity.ErrDegenerateVector) {
		r.logger.Warn("degenerate embedding vector, fidelity forced to 0",
			zap.String("item", itemID))
		return 0, "degenerate embedding vector"
	}

	return 0, err.Error()
}

// =============================================================================
// MULTI-BENCHMARK RUNS
// =============================================================================

// Run executes one session per benchmark, sharing the attractor.
// Sessions run concurrently up to the configured limit; results come
// back keyed by benchmark name.
func (r *Runner) Run(ctx context.Context, benchmarks map[string][]dataset.Item, pa *attractor.Attractor) (map[string]*Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	if c := r.cfg.Validation.Concurrency; c > 0 {
		g.SetLimit(c)
	}

	results := make(map[string]*Result, len(benchmarks))
	resultCh := make(chan *Result, len(benchmarks))

	for name, items := range benchmarks {
		name, items := name, items
		g.Go(func() error {
			res, err := r.RunBenchmark(ctx, name, items, pa)
			if err != nil {
				return fmt.Errorf("benchmark %s: %w", name, err)
			}
			resultCh <- res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(resultCh)

	for res := range resultCh {
		results[res.Benchmark] = res
	}
	return results, nil
}

func (r *Runner) sweepCandidates() []float64 {
	if len(r.cfg.Sweep.Candidates) > 0 {
		return r.cfg.Sweep.Candidates
	}
	return stats.DefaultSweepCandidates
}
