package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ejagojo/SentryCheck/internal/alert"
	"github.com/ejagojo/SentryCheck/internal/baseline"
	"github.com/ejagojo/SentryCheck/internal/config"
	"github.com/ejagojo/SentryCheck/internal/logging"
	"github.com/ejagojo/SentryCheck/internal/output"
	"github.com/ejagojo/SentryCheck/internal/platform"
	"github.com/ejagojo/SentryCheck/internal/report"
	"github.com/ejagojo/SentryCheck/internal/rules"
	"github.com/ejagojo/SentryCheck/internal/syntax"
	"github.com/ejagojo/SentryCheck/pkg/sentrycheck"
)

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitIssues     = 3
	exitSinkFailed = 4
	exitSuppressed = 5
)

var (
	version       = "dev" // Set by ldflags
	configPath    string
	outputType    string
	outputFile    string
	noFail        bool
	threads       int
	since         string
	commitRange   string
	includeExt    []string
	excludeExt    []string
	skipHidden    bool
	enableRules   []string
	disableRules  []string
	noBaseline    bool
	webhookURL    string
	webhookSecret string
	severity      string
	platformLog   string
	logLevel      string
	logFormat     string
	force         bool
)

// runSummary is what the exit code is derived from.
type runSummary struct {
	Issues     []rules.Issue
	Threshold  rules.Severity
	Suppressed bool
	SinkFailed bool
}

// exitCode maps a finished run to a process exit code.
func exitCode(err error, s runSummary) int {
	if err != nil {
		return exitError
	}
	if s.SinkFailed {
		return exitSinkFailed
	}
	if !noFail {
		for _, i := range s.Issues {
			if i.Severity.Rank() >= s.Threshold.Rank() {
				if s.Suppressed {
					return exitSuppressed
				}
				return exitIssues
			}
		}
	}
	return exitOK
}

// exitWith is a function that can be replaced in tests
var exitWith = func(err error, s runSummary) {
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err, s))
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sentrycheck",
		Short:         "Rule-driven static code analysis",
		Long:          `SentryCheck parses source files, runs configurable analysis rules against their syntax trees, and reports issues to the console, files, webhooks and external code-quality platforms.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	rootCmd.AddCommand(newAnalyzeCmd(), newRulesCmd(), newInitCmd(), newBaselineCmd())
	return rootCmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Analyze source files",
		Long:  `Run every activated rule against the source files under the given paths and report the issues found.`,
		Args:  cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if since != "" && commitRange != "" {
				return fmt.Errorf("--since and --commit-range are mutually exclusive")
			}
			if _, err := rules.ParseSeverity(severity); severity != "" && err != nil {
				return err
			}
			switch output.OutputType(outputType) {
			case output.OutputTypeConsole, output.OutputTypeJSON, output.OutputTypeSARIF, output.OutputTypeSonar:
				return nil
			default:
				return fmt.Errorf("unsupported output type: %s", outputType)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := runAnalyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
			exitWith(err, summary)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&outputType, "type", "t", string(output.OutputTypeConsole), "output type (console, json, sarif, sonar)")
	f.StringVarP(&outputFile, "out", "o", "", "output file (default: stdout)")
	f.BoolVar(&noFail, "no-fail", false, "don't fail on issues above the severity threshold")
	f.IntVar(&threads, "threads", 0, "number of units analysed in parallel")
	f.StringVar(&since, "since", "", "only analyze files changed since this git revision")
	f.StringVar(&commitRange, "commit-range", "", "only analyze files touched in a git commit range (from..to)")
	f.StringSliceVar(&includeExt, "include-ext", nil, "include files with these extensions")
	f.StringSliceVar(&excludeExt, "exclude-ext", nil, "exclude files with these extensions")
	f.BoolVar(&skipHidden, "skip-hidden", true, "skip hidden directories")
	f.StringSliceVar(&enableRules, "enable", nil, "activate these rule IDs")
	f.StringSliceVar(&disableRules, "disable", nil, "deactivate these rule IDs")
	f.BoolVar(&noBaseline, "no-baseline", false, "ignore baseline suppressions")
	f.StringVar(&webhookURL, "webhook-url", "", "webhook URL for issue reports")
	f.StringVar(&webhookSecret, "webhook-secret", "", "webhook secret for signing")
	f.StringVar(&severity, "severity", "", "minimum severity that fails the run")
	f.StringVar(&platformLog, "platform-log", "", "forward logs and issues to the platform log at this path")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config.Merge(cfg, map[string]interface{}{
		"threads":        threads,
		"no-baseline":    noBaseline,
		"webhook-url":    webhookURL,
		"webhook-secret": webhookSecret,
		"severity":       severity,
		"log-level":      logLevel,
		"log-format":     logFormat,
		"platform-log":   platformLog,
	}), nil
}

func runAnalyze(ctx context.Context, stdout, stderr io.Writer, args []string) (runSummary, error) {
	var summary runSummary
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return summary, err
	}
	summary.Threshold, err = rules.ParseSeverity(cfg.SeverityThresh)
	if err != nil {
		return summary, err
	}

	handlers := []slog.Handler{logging.NewHandler(cfg.Log.Format, cfg.Log.Level, stderr)}
	var adapter *platform.Adapter
	if cfg.Platform.LogFile != "" {
		f, err := os.Create(cfg.Platform.LogFile)
		if err != nil {
			return summary, fmt.Errorf("failed to open platform log: %w", err)
		}
		defer f.Close()
		adapter = platform.NewAdapter(platform.NewWriterPlatform(f))
		adapter.Configure(cfg.Platform.Properties)
		handlers = append(handlers, platform.NewHandler(adapter, logging.ParseLevel(cfg.Log.Level)))
	}
	logger := logging.New(handlers...)

	res, err := sentrycheck.Analyze(ctx, sentrycheck.Options{
		Config: cfg,
		Paths:  args,
		Collect: syntax.CollectOptions{
			IncludeExt:  includeExt,
			ExcludeExt:  excludeExt,
			MaxFileSize: syntax.MaxFileSize,
			SkipHidden:  skipHidden,
		},
		Since:       since,
		CommitRange: commitRange,
		Enable:      enableRules,
		Disable:     disableRules,
		Logger:      logger,
	})
	if err != nil {
		return summary, err
	}
	summary.Issues = res.Issues
	summary.Suppressed = res.Suppressed > 0

	reporter := report.New(logger)
	if outputFile != "" {
		reporter.Add(output.NewFileSink("file", output.OutputType(outputType), outputFile))
	} else {
		reporter.Add(output.NewWriterSink("stdout", output.OutputType(outputType), stdout))
	}
	if cfg.WebhookURL != "" {
		repo := "."
		if len(args) > 0 {
			repo = args[0]
		}
		ref := since
		if commitRange != "" {
			ref = commitRange
		}
		reporter.Add(alert.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, alert.WithSource(repo, ref)))
	}
	if adapter != nil {
		reporter.Add(platform.NewSink(adapter))
	}

	outcome := reporter.Report(ctx, res.Issues)
	if failures := outcome.Failures(); len(failures) > 0 {
		summary.SinkFailed = true
		for _, f := range failures {
			color.New(color.FgYellow).Fprintf(stderr, "Warning: %v\n", f)
		}
	}
	return summary, nil
}

func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect configured rules",
	}
	rulesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured rules and their activation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := rules.BuildRegistry(cfg.Rules)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Severity", "Activated", "Description"})
			for _, r := range reg.All() {
				t.AppendRow(table.Row{r.ID(), r.Severity, r.Activated(), r.Description})
			}
			t.Render()
			return nil
		},
	})
	return rulesCmd
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}
			if err := config.Save(config.Default(), configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newBaselineCmd() *cobra.Command {
	baselineCmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage baseline suppressions",
		Long:  `Record current issues in the baseline suppression file, or list it.`,
	}

	baselineCmd.AddCommand(&cobra.Command{
		Use:   "create [path]",
		Short: "Add every current issue to the baseline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.NoBaseline = true

			res, err := sentrycheck.Analyze(cmd.Context(), sentrycheck.Options{
				Config:  cfg,
				Paths:   []string{dir},
				Collect: syntax.CollectOptions{MaxFileSize: syntax.MaxFileSize, SkipHidden: true},
				Logger:  logging.New(logging.NewHandler(cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())),
			})
			if err != nil {
				return err
			}

			bl, err := baseline.Load(dir)
			if err != nil {
				return fmt.Errorf("failed to load baseline: %w", err)
			}
			added := 0
			for _, issue := range res.Issues {
				if issue.IsFailure() {
					continue
				}
				if err := bl.Add(issue); err != nil {
					if errors.Is(err, baseline.ErrAlreadyBaselined) {
						continue
					}
					return err
				}
				added++
			}
			if err := bl.Save(dir); err != nil {
				return fmt.Errorf("failed to save baseline: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %d issues to baseline\n", added)
			return nil
		},
	})

	baselineCmd.AddCommand(&cobra.Command{
		Use:   "list [path]",
		Short: "List baseline suppressions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			bl, err := baseline.Load(dir)
			if err != nil {
				return fmt.Errorf("failed to load baseline: %w", err)
			}

			for _, e := range bl.Issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s:%d %s\n", e.RuleID, e.Path, e.Line, e.Fingerprint)
			}
			return nil
		},
	})
	return baselineCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitWith(err, runSummary{})
	}
}
