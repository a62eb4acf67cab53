// Package sentrycheck runs the analysis pipeline end to end: build the rule
// registry, collect and parse units, run the activated rules, and apply the
// baseline. Reporting is left to the caller.
package sentrycheck

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/ejagojo/SentryCheck/internal/baseline"
	"github.com/ejagojo/SentryCheck/internal/config"
	"github.com/ejagojo/SentryCheck/internal/gitx"
	"github.com/ejagojo/SentryCheck/internal/rules"
	"github.com/ejagojo/SentryCheck/internal/runner"
	"github.com/ejagojo/SentryCheck/internal/syntax"
)

// Options describes one analysis invocation.
type Options struct {
	Config  *config.Config
	Paths   []string
	Collect syntax.CollectOptions
	// Since restricts analysis to files changed since this revision.
	Since string
	// CommitRange ("from..to") restricts analysis to files touched in range.
	CommitRange string
	Enable      []string
	Disable     []string
	Logger      *slog.Logger
}

// Result is the outcome of Analyze.
type Result struct {
	Registry   *rules.Registry
	Units      []runner.Result
	Issues     []rules.Issue
	Suppressed int
}

// Skipped returns units that could not be parsed.
func (r *Result) Skipped() []runner.Result {
	var out []runner.Result
	for _, u := range r.Units {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}

// Analyze runs the pipeline. Registry construction failures abort before any
// unit is analysed.
func Analyze(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	paths := opts.Paths
	if len(paths) == 0 {
		paths = []string{"."}
	}

	reg, err := rules.BuildRegistry(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule registry: %w", err)
	}
	if err := rules.ApplyToggles(reg, opts.Enable, opts.Disable); err != nil {
		return nil, fmt.Errorf("failed to apply rule toggles: %w", err)
	}

	collect := opts.Collect
	if opts.Since != "" || opts.CommitRange != "" {
		scope, err := changedScope(paths, opts.Since, opts.CommitRange)
		if err != nil {
			return nil, err
		}
		collect.Only = scope
	}

	files, err := syntax.Collect(ctx, collect, paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to collect files: %w", err)
	}
	logger.Info("analysis starting",
		slog.Int("rules", reg.Len()),
		slog.Int("files", len(files)))

	run := runner.New(reg,
		runner.WithLogger(logger),
		runner.WithConcurrency(cfg.Concurrency),
	)
	units, err := run.RunFiles(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("analysis aborted: %w", err)
	}

	res := &Result{
		Registry: reg,
		Units:    units,
		Issues:   runner.Issues(units),
	}

	if !cfg.NoBaseline {
		bl, err := baseline.Load(paths[0])
		if err != nil {
			return nil, fmt.Errorf("failed to load baseline: %w", err)
		}
		before := len(res.Issues)
		res.Issues = bl.Filter(res.Issues)
		res.Suppressed = before - len(res.Issues)
	}

	logger.Info("analysis finished",
		slog.Int("issues", len(res.Issues)),
		slog.Int("suppressed", res.Suppressed),
		slog.Int("skipped", len(res.Skipped())))
	return res, nil
}

// changedScope resolves the changed files in the repository containing the
// first path and maps them onto every analysed path inside that repository.
func changedScope(paths []string, since, commitRange string) (map[string]bool, error) {
	_, worktree, err := gitx.Open(paths[0])
	if err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", paths[0], err)
	}

	var files []string
	if commitRange != "" {
		from, to, ok := strings.Cut(commitRange, "..")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid commit range %q, want from..to", commitRange)
		}
		files, err = gitx.FilesInRange(worktree, from, to)
	} else {
		files, err = gitx.ChangedFiles(worktree, since)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve changed files: %w", err)
	}

	scope := make(map[string]bool)
	for _, root := range paths {
		s, err := gitx.Scope(worktree, root, files)
		if err != nil {
			return nil, fmt.Errorf("failed to scope %s: %w", root, err)
		}
		maps.Copy(scope, s)
	}
	return scope, nil
}
