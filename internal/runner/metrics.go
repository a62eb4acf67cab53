package runner

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "sentrycheck.runner"

var tracer = otel.Tracer(instrumentationName)

// instruments are the runner's metrics.
type instruments struct {
	rulesExecuted    metric.Int64Counter
	issuesFound      metric.Int64Counter
	analysisFailures metric.Int64Counter
	unitDuration     metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)
	var inst instruments
	var err, errs error

	inst.rulesExecuted, err = meter.Int64Counter(
		"rules_executed_total",
		metric.WithDescription("Number of rule executions"),
	)
	errs = errors.Join(errs, err)

	inst.issuesFound, err = meter.Int64Counter(
		"issues_found_total",
		metric.WithDescription("Number of issues produced by rules"),
	)
	errs = errors.Join(errs, err)

	inst.analysisFailures, err = meter.Int64Counter(
		"analysis_failures_total",
		metric.WithDescription("Number of rule executions that failed"),
	)
	errs = errors.Join(errs, err)

	inst.unitDuration, err = meter.Float64Histogram(
		"unit_duration_seconds",
		metric.WithDescription("Time spent analysing one syntax unit"),
		metric.WithUnit("s"),
	)
	errs = errors.Join(errs, err)

	if errs != nil {
		return nil, errs
	}
	return &inst, nil
}

func startUnitSpan(ctx context.Context, path, language string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Runner.RunUnit",
		trace.WithAttributes(
			attribute.String("unit.path", path),
			attribute.String("unit.language", language),
		),
	)
}

func (i *instruments) recordRule(ctx context.Context, ruleID string, issues int, failed bool) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("rule", ruleID))
	i.rulesExecuted.Add(ctx, 1, attrs)
	i.issuesFound.Add(ctx, int64(issues), attrs)
	if failed {
		i.analysisFailures.Add(ctx, 1, attrs)
	}
}

func (i *instruments) recordUnit(ctx context.Context, language string, d time.Duration) {
	if i == nil {
		return
	}
	i.unitDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("language", language)))
}
