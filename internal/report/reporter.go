package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

// ErrSinkFailure matches any SinkFailure.
var ErrSinkFailure = errors.New("sink failure")

// Sink is a destination for reported issues.
type Sink interface {
	Name() string
	// Report delivers the full issue list. An error fails the whole
	// delivery to this sink.
	Report(ctx context.Context, issues []rules.Issue) error
}

// SinkFailure records a sink that could not take the report.
type SinkFailure struct {
	Sink string
	Err  error
}

func (e *SinkFailure) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkFailure) Unwrap() error { return e.Err }

func (e *SinkFailure) Is(target error) bool { return target == ErrSinkFailure }

// SinkResult is the outcome of one sink.
type SinkResult struct {
	Sink     string
	Err      error
	Duration time.Duration
}

// Outcome holds one SinkResult per configured sink, in sink order.
type Outcome struct {
	Results []SinkResult
}

// Failures returns the failed sinks.
func (o Outcome) Failures() []*SinkFailure {
	var out []*SinkFailure
	for _, r := range o.Results {
		var f *SinkFailure
		if errors.As(r.Err, &f) {
			out = append(out, f)
		}
	}
	return out
}

// Err joins every sink failure, or returns nil.
func (o Outcome) Err() error {
	var errs []error
	for _, r := range o.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Reporter fans issues out to sinks. A failing sink never stops the others.
type Reporter struct {
	sinks  []Sink
	logger *slog.Logger
}

// New creates a reporter. A nil logger uses slog.Default().
func New(logger *slog.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{sinks: sinks, logger: logger}
}

// Add appends a sink.
func (r *Reporter) Add(s Sink) {
	r.sinks = append(r.sinks, s)
}

// Report sends issues to every sink in order.
func (r *Reporter) Report(ctx context.Context, issues []rules.Issue) Outcome {
	out := Outcome{Results: make([]SinkResult, 0, len(r.sinks))}
	for _, sink := range r.sinks {
		start := time.Now()
		err := deliver(ctx, sink, slices.Clone(issues))
		res := SinkResult{Sink: sink.Name(), Duration: time.Since(start)}
		if err != nil {
			res.Err = &SinkFailure{Sink: sink.Name(), Err: err}
			r.logger.Error("sink failed", slog.String("sink", sink.Name()), slog.String("error", err.Error()))
		} else {
			r.logger.Debug("sink delivered", slog.String("sink", sink.Name()), slog.Int("issues", len(issues)))
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// deliver calls the sink, converting a panic into an error.
func deliver(ctx context.Context, sink Sink, issues []rules.Issue) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return sink.Report(ctx, issues)
}
