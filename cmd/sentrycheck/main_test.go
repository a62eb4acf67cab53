package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejagojo/SentryCheck/internal/baseline"
	"github.com/ejagojo/SentryCheck/internal/config"
	"github.com/ejagojo/SentryCheck/internal/rules"
)

const (
	cleanSource  = "package clean\n\nfunc Add(a, b int) int { return a + b }\n"
	secretSource = "package leak\n\nvar token = \"abcdefghijklmnopqrstuvwxyz0123456789\"\n"
	panicSource  = "package p\n\nfunc F() { panic(\"x\") }\n"
)

type result struct {
	stdout string
	stderr string
	code   int
	err    error
}

// run executes the CLI with a throwaway config path and captures the exit
// code instead of exiting.
func run(t *testing.T, args ...string) result {
	t.Helper()

	var res result
	res.code = -1
	old := exitWith
	exitWith = func(err error, s runSummary) { res.code = exitCode(err, s) }
	t.Cleanup(func() { exitWith = old })

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	full := append([]string{}, args...)
	if !hasConfig(args) {
		// One argument, so a preceding --help cannot swallow the flag name.
		full = append(full, "--config="+filepath.Join(t.TempDir(), "none.yaml"))
	}
	cmd.SetArgs(full)

	res.err = cmd.Execute()
	res.stdout = stdout.String()
	res.stderr = stderr.String()
	return res
}

func hasConfig(args []string) bool {
	for _, a := range args {
		if a == "--config" || a == "-c" || strings.HasPrefix(a, "--config=") {
			return true
		}
	}
	return false
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func decodeIssues(t *testing.T, out string) []rules.Issue {
	t.Helper()
	var issues []rules.Issue
	require.NoError(t, json.Unmarshal([]byte(out), &issues), out)
	return issues
}

func TestAnalyzeCommand(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		args     []string
		wantExit int
		wantRule string
	}{
		{
			name:     "clean directory",
			files:    map[string]string{"clean.go": cleanSource},
			wantExit: exitOK,
		},
		{
			name:     "hardcoded secret",
			files:    map[string]string{"leak.go": secretSource},
			wantExit: exitIssues,
			wantRule: "hardcoded-secret",
		},
		{
			name:     "medium issue below threshold",
			files:    map[string]string{"p.go": panicSource},
			wantExit: exitOK,
			wantRule: "go-panic-call",
		},
		{
			name:     "medium issue with lowered threshold",
			files:    map[string]string{"p.go": panicSource},
			args:     []string{"--severity", "medium"},
			wantExit: exitIssues,
			wantRule: "go-panic-call",
		},
		{
			name:     "no-fail",
			files:    map[string]string{"leak.go": secretSource},
			args:     []string{"--no-fail"},
			wantExit: exitOK,
			wantRule: "hardcoded-secret",
		},
		{
			name:     "rule disabled",
			files:    map[string]string{"leak.go": secretSource},
			args:     []string{"--disable", "hardcoded-secret"},
			wantExit: exitOK,
		},
		{
			name:     "syntax error",
			files:    map[string]string{"bad.go": "package bad\n\nfunc (\n"},
			wantExit: exitIssues,
			wantRule: "syntax-error",
		},
		{
			name:     "python eval",
			files:    map[string]string{"run.py": "eval(input())\n"},
			wantExit: exitIssues,
			wantRule: "py-eval-call",
		},
		{
			name:     "unknown rule toggle",
			files:    map[string]string{"clean.go": cleanSource},
			args:     []string{"--enable", "no-such-rule"},
			wantExit: exitError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, tt.files)
			args := append([]string{"analyze", "--type", "json", "--log-level", "error"}, tt.args...)
			args = append(args, dir)

			res := run(t, args...)
			require.NoError(t, res.err)
			assert.Equal(t, tt.wantExit, res.code, res.stderr)

			if tt.wantExit == exitError {
				return
			}
			issues := decodeIssues(t, res.stdout)
			if tt.wantRule == "" {
				assert.Empty(t, issues)
				return
			}
			require.NotEmpty(t, issues)
			assert.Equal(t, tt.wantRule, issues[0].RuleID)
		})
	}
}

func TestAnalyzeCommand_FlagErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{"clean.go": cleanSource})

	tests := []struct {
		name string
		args []string
	}{
		{"bogus flag", []string{"analyze", "--bogus", dir}},
		{"since and range", []string{"analyze", "--since", "HEAD", "--commit-range", "a..b", dir}},
		{"bad severity", []string{"analyze", "--severity", "urgent", dir}},
		{"bad type", []string{"analyze", "--type", "xml", dir}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.args...)
			assert.Error(t, res.err)
			assert.Equal(t, -1, res.code, "the run must not start")
		})
	}
}

func TestAnalyzeCommand_OutputFormats(t *testing.T) {
	dir := writeFiles(t, map[string]string{"leak.go": secretSource})

	res := run(t, "analyze", "--type", "sarif", "--no-fail", "--log-level", "error", dir)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"version": "2.1.0"`)
	assert.Contains(t, res.stdout, "hardcoded-secret")

	res = run(t, "analyze", "--type", "sonar", "--no-fail", "--log-level", "error", dir)
	assert.Contains(t, res.stdout, `"engineId": "sentrycheck"`)

	res = run(t, "analyze", "--no-fail", "--log-level", "error", dir)
	assert.Contains(t, res.stdout, "hardcoded-secret")
}

func TestAnalyzeCommand_OutputFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"leak.go": secretSource})
	out := filepath.Join(t.TempDir(), "report.json")

	res := run(t, "analyze", "--type", "json", "--out", out, "--log-level", "error", dir)
	require.NoError(t, res.err)
	assert.Equal(t, exitIssues, res.code)
	assert.Empty(t, res.stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, decodeIssues(t, string(data)), 1)
}

func TestAnalyzeCommand_SinkFailure(t *testing.T) {
	dir := writeFiles(t, map[string]string{"leak.go": secretSource})
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "missing", "report.json")
	res := run(t, "analyze", "--out", out, "--webhook-url", server.URL, "--webhook-secret", "s", "--log-level", "error", dir)
	require.NoError(t, res.err)

	// The file sink fails; the webhook still receives the report.
	assert.Equal(t, exitSinkFailed, res.code)
	assert.Equal(t, int32(1), hits.Load())
	assert.Contains(t, res.stderr, "Warning: sink file")
}

func TestAnalyzeCommand_PlatformLog(t *testing.T) {
	dir := writeFiles(t, map[string]string{"leak.go": secretSource})
	logPath := filepath.Join(t.TempDir(), "platform.log")

	res := run(t, "analyze", "--type", "json", "--no-fail", "--log-level", "error", "--platform-log", logPath, dir)
	require.NoError(t, res.err)
	assert.Equal(t, exitOK, res.code)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ERROR [hardcoded-secret]")
	assert.Contains(t, string(data), "INFO 1 issue(s) reported")
}

func TestAnalyzeCommand_ConfigFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"notes.sh": "# TODO: tidy\necho hi\n"})
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
severity: info
rules:
  - id: todo
    kind: pattern
    severity: info
    pattern: '\bTODO\b'
    message: unresolved TODO
`), 0644))

	res := run(t, "analyze", "--config", cfgPath, "--type", "json", "--log-level", "error", dir)
	require.NoError(t, res.err)
	assert.Equal(t, exitIssues, res.code)

	issues := decodeIssues(t, res.stdout)
	require.Len(t, issues, 1)
	assert.Equal(t, "todo", issues[0].RuleID)
	assert.Equal(t, 1, issues[0].Location.StartLine)
}

func TestAnalyzeCommand_InvalidConfig(t *testing.T) {
	dir := writeFiles(t, map[string]string{"clean.go": cleanSource})
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("rules:\n  - id: dup\n    kind: syntax\n  - id: dup\n    kind: syntax\n"), 0644))

	res := run(t, "analyze", "--config", cfgPath, "--log-level", "error", dir)
	require.NoError(t, res.err)
	assert.Equal(t, exitError, res.code)
}

func TestBaselineCommands(t *testing.T) {
	dir := writeFiles(t, map[string]string{"leak.go": secretSource})

	res := run(t, "baseline", "create", "--log-level", "error", dir)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Added 1 issues to baseline")

	bl, err := baseline.Load(dir)
	require.NoError(t, err)
	require.Len(t, bl.Issues, 1)

	res = run(t, "baseline", "list", dir)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "hardcoded-secret")
	assert.Contains(t, res.stdout, bl.Issues[0].Fingerprint)

	// Everything known is suppressed.
	res = run(t, "analyze", "--type", "json", "--log-level", "error", dir)
	assert.Equal(t, exitOK, res.code)
	assert.Empty(t, decodeIssues(t, res.stdout))

	// A new finding on top of suppressed ones.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leak2.go"), []byte(secretSource), 0644))
	res = run(t, "analyze", "--type", "json", "--log-level", "error", dir)
	assert.Equal(t, exitSuppressed, res.code)
	assert.Len(t, decodeIssues(t, res.stdout), 1)

	res = run(t, "analyze", "--type", "json", "--no-baseline", "--log-level", "error", dir)
	assert.Equal(t, exitIssues, res.code)
	assert.Len(t, decodeIssues(t, res.stdout), 2)

	// Creating again adds only the new issue.
	res = run(t, "baseline", "create", "--log-level", "error", dir)
	assert.Contains(t, res.stdout, "Added 1 issues to baseline")
}

func TestRulesList(t *testing.T) {
	res := run(t, "rules", "list")
	require.NoError(t, res.err)
	for _, id := range []string{"syntax-error", "go-panic-call", "hardcoded-secret", "todo-comment"} {
		assert.Contains(t, res.stdout, id)
	}
	assert.Contains(t, res.stdout, "false")
}

func TestInitCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), ".sentrycheck.yaml")

	res := run(t, "init", "--config", cfgPath)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	res = run(t, "init", "--config", cfgPath)
	assert.ErrorContains(t, res.err, "already exists")

	res = run(t, "init", "--config", cfgPath, "--force")
	assert.NoError(t, res.err)
}

func TestHelpCommand(t *testing.T) {
	for _, args := range [][]string{
		{"--help"},
		{"--help", "--config=" + filepath.Join(t.TempDir(), "x.yaml")},
		{"analyze", "--help"},
	} {
		res := run(t, args...)
		require.NoError(t, res.err, args)
		assert.Contains(t, res.stdout, "Usage:", args)
	}

	res := run(t, "--help")
	assert.Contains(t, res.stdout, "runs configurable analysis rules")
}

func TestExitCode(t *testing.T) {
	noFail = false
	high := rules.Issue{Severity: rules.SeverityHigh}
	low := rules.Issue{Severity: rules.SeverityLow}

	tests := []struct {
		name string
		err  error
		s    runSummary
		want int
	}{
		{"error wins", errors.New("x"), runSummary{SinkFailed: true}, exitError},
		{"sink failed", nil, runSummary{SinkFailed: true, Issues: []rules.Issue{high}, Threshold: rules.SeverityHigh}, exitSinkFailed},
		{"issues at threshold", nil, runSummary{Issues: []rules.Issue{low, high}, Threshold: rules.SeverityHigh}, exitIssues},
		{"below threshold", nil, runSummary{Issues: []rules.Issue{low}, Threshold: rules.SeverityHigh}, exitOK},
		{"suppressed with remaining", nil, runSummary{Issues: []rules.Issue{high}, Threshold: rules.SeverityHigh, Suppressed: true}, exitSuppressed},
		{"suppressed clean", nil, runSummary{Threshold: rules.SeverityHigh, Suppressed: true}, exitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err, tt.s))
		})
	}
}

func TestAnalyzeCommand_SkipsUnparseableFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"clean.go":  cleanSource,
		"binary.go": "\xff\xfe\x00garbage",
	})

	res := run(t, "analyze", "--type", "json", "--log-level", "warn", dir)
	require.NoError(t, res.err)
	assert.Equal(t, exitOK, res.code)
	assert.True(t, strings.Contains(res.stderr, "skipping unit"), res.stderr)
}
