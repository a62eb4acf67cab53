package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ejagojo/SentryCheck/internal/rules"
	"github.com/ejagojo/SentryCheck/internal/syntax"
)

// DefaultConcurrency is the number of units analysed in parallel.
const DefaultConcurrency = 4

// Result holds the issues found in one unit.
type Result struct {
	Path   string
	Issues []rules.Issue
	// Err is set when the unit could not be loaded; Issues is then empty.
	Err error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConcurrency sets how many units run in parallel.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMeterProvider sets the meter provider used for runner metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Runner) {
		if mp != nil {
			r.meterProvider = mp
		}
	}
}

// Runner executes the activated rules of a registry against syntax units.
//
// Rules run sequentially inside a unit; units are independent and may run in
// parallel. The registry must not be toggled while a run is in progress.
type Runner struct {
	registry      *rules.Registry
	logger        *slog.Logger
	concurrency   int
	meterProvider metric.MeterProvider
	metrics       *instruments
}

// New creates a Runner over reg.
func New(reg *rules.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry:      reg,
		logger:        slog.Default(),
		concurrency:   DefaultConcurrency,
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(r)
	}

	inst, err := newInstruments(r.meterProvider)
	if err != nil {
		r.logger.Warn("runner metrics disabled", slog.String("error", err.Error()))
	}
	r.metrics = inst
	return r
}

// runContext ties one unit to its issue accumulator for one pass.
type runContext struct {
	unit   *syntax.Unit
	issues []rules.Issue
}

// RunUnit runs every activated rule against unit, in registry order. A rule
// that returns an error or panics contributes one analysis-failure issue
// after whatever issues it returned; the remaining rules still run.
// Duplicate issues are kept.
func (r *Runner) RunUnit(ctx context.Context, unit *syntax.Unit) []rules.Issue {
	ctx, span := startUnitSpan(ctx, unit.Path, string(unit.Language))
	defer span.End()
	start := time.Now()

	rc := &runContext{unit: unit}
	for rule := range r.registry.Activated() {
		r.runRule(ctx, rc, rule)
	}

	r.metrics.recordUnit(ctx, string(unit.Language), time.Since(start))
	r.logger.Debug("unit analysed",
		slog.String("path", unit.Path),
		slog.Int("issues", len(rc.issues)),
		slog.Duration("elapsed", time.Since(start)))
	return rc.issues
}

func (r *Runner) runRule(ctx context.Context, rc *runContext, rule *rules.Rule) {
	issues, err := check(ctx, rule, rc.unit)
	rc.issues = append(rc.issues, issues...)
	if err != nil {
		r.logger.Warn("rule failed",
			slog.String("rule", rule.ID()),
			slog.String("path", rc.unit.Path),
			slog.String("error", err.Error()))
		rc.issues = append(rc.issues, rules.AnalysisFailure(rule.ID(), rc.unit.Path, err))
	}
	r.metrics.recordRule(ctx, rule.ID(), len(issues), err != nil)
}

// check calls the rule's checker, converting a panic into an error.
func check(ctx context.Context, rule *rules.Rule, unit *syntax.Unit) (issues []rules.Issue, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return rule.Checker.Check(ctx, unit)
}

// Run analyses units in parallel and returns one Result per unit, in input
// order. Cancellation is checked before each unit starts.
func (r *Runner) Run(ctx context.Context, units []*syntax.Unit) ([]Result, error) {
	results := make([]Result, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, unit := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Result{Path: unit.Path, Issues: r.RunUnit(gctx, unit)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunFiles parses and analyses each file, releasing every tree once its
// unit is done. Files that fail to parse get a Result with Err set.
func (r *Runner) RunFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			unit, err := syntax.ParseFile(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.Warn("skipping unit", slog.String("path", path), slog.String("error", err.Error()))
				results[i] = Result{Path: path, Err: err}
				return nil
			}
			defer unit.Close()

			results[i] = Result{Path: unit.Path, Issues: r.RunUnit(gctx, unit)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Issues flattens results in order.
func Issues(results []Result) []rules.Issue {
	var out []rules.Issue
	for _, res := range results {
		out = append(out, res.Issues...)
	}
	return out
}
