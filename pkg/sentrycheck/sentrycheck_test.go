package sentrycheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejagojo/SentryCheck/internal/baseline"
	"github.com/ejagojo/SentryCheck/internal/config"
	"github.com/ejagojo/SentryCheck/internal/logging"
	"github.com/ejagojo/SentryCheck/internal/rules"
	"github.com/ejagojo/SentryCheck/internal/syntax"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func ruleIDs(issues []rules.Issue) []string {
	var ids []string
	for _, i := range issues {
		ids = append(ids, i.RuleID)
	}
	return ids
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.go", "package a\n\nfunc F() { panic(\"x\") }\n")
	write(t, dir, "b.js", "eval(code)\n")
	write(t, dir, "c.go", "package c\n// TODO later\n")
	write(t, dir, "README.md", "eval(x)\n")

	res, err := Analyze(context.Background(), Options{
		Paths:  []string{dir},
		Enable: []string{"todo-comment"},
		Logger: logging.Discard(),
	})
	require.NoError(t, err)

	assert.Len(t, res.Units, 3)
	assert.Empty(t, res.Skipped())
	assert.ElementsMatch(t, []string{"go-panic-call", "js-eval-call", "todo-comment"}, ruleIDs(res.Issues))
	assert.Zero(t, res.Suppressed)
}

func TestAnalyze_InvalidRules(t *testing.T) {
	cfg := config.Default()
	cfg.Rules = append(cfg.Rules, rules.RuleConfig{ID: "syntax-error", Kind: rules.KindSyntax})

	_, err := Analyze(context.Background(), Options{Config: cfg, Paths: []string{t.TempDir()}, Logger: logging.Discard()})
	assert.ErrorIs(t, err, rules.ErrDuplicateRule)
}

func TestAnalyze_UnknownToggle(t *testing.T) {
	_, err := Analyze(context.Background(), Options{
		Paths:   []string{t.TempDir()},
		Disable: []string{"missing"},
		Logger:  logging.Discard(),
	})
	assert.ErrorIs(t, err, rules.ErrUnknownRule)
}

func TestAnalyze_Baseline(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.go", "package a\n\nfunc F() { panic(\"x\") }\n")

	first, err := Analyze(context.Background(), Options{Paths: []string{dir}, Logger: logging.Discard()})
	require.NoError(t, err)
	require.Len(t, first.Issues, 1)

	bl, err := baseline.Load(dir)
	require.NoError(t, err)
	require.NoError(t, bl.Add(first.Issues[0]))
	require.NoError(t, bl.Save(dir))

	second, err := Analyze(context.Background(), Options{Paths: []string{dir}, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Empty(t, second.Issues)
	assert.Equal(t, 1, second.Suppressed)

	cfg := config.Default()
	cfg.NoBaseline = true
	third, err := Analyze(context.Background(), Options{Config: cfg, Paths: []string{dir}, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Len(t, third.Issues, 1)
}

func TestAnalyze_SkipsUnparseable(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "ok.go", "package ok\n")
	write(t, dir, "bad.go", "\xff\xfe")

	res, err := Analyze(context.Background(), Options{Paths: []string{dir}, Logger: logging.Discard()})
	require.NoError(t, err)
	require.Len(t, res.Skipped(), 1)
	assert.ErrorIs(t, res.Skipped()[0].Err, syntax.ErrInvalidContent)
}

func TestAnalyze_Canceled(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.go", "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Analyze(ctx, Options{Paths: []string{dir}, Logger: logging.Discard()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_GitScope(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(msg string, when time.Time, files map[string]string) string {
		for name, content := range files {
			write(t, dir, name, content)
			_, err := wt.Add(name)
			require.NoError(t, err)
		}
		sig := &object.Signature{Name: "Test", Email: "test@example.com", When: when}
		hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
		require.NoError(t, err)
		return hash.String()
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := commit("first", base, map[string]string{"old.go": "package old\n\nfunc F() { panic(1) }\n"})
	second := commit("second", base.Add(time.Minute), map[string]string{"new.go": "package new\n\nfunc G() { panic(2) }\n"})

	res, err := Analyze(context.Background(), Options{Paths: []string{dir}, Since: first, Logger: logging.Discard()})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "new.go", filepath.Base(res.Issues[0].Location.Path))

	res, err = Analyze(context.Background(), Options{Paths: []string{dir}, CommitRange: first + ".." + second, Logger: logging.Discard()})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)

	_, err = Analyze(context.Background(), Options{Paths: []string{dir}, CommitRange: "nodots", Logger: logging.Discard()})
	assert.ErrorContains(t, err, "invalid commit range")

	_, err = Analyze(context.Background(), Options{Paths: []string{t.TempDir()}, Since: "HEAD", Logger: logging.Discard()})
	assert.ErrorContains(t, err, "not a git repository")
}

func TestAnalyze_GitScopeSubdirectory(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(msg string, when time.Time, files map[string]string) string {
		for name, content := range files {
			write(t, dir, name, content)
			_, err := wt.Add(name)
			require.NoError(t, err)
		}
		sig := &object.Signature{Name: "Test", Email: "test@example.com", When: when}
		hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
		require.NoError(t, err)
		return hash.String()
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := commit("first", base, map[string]string{"b/old.go": "package b\n\nfunc F() { panic(1) }\n"})
	commit("second", base.Add(time.Minute), map[string]string{
		"a.go":     "package a\n\nfunc A() { panic(0) }\n",
		"b/new.go": "package b\n\nfunc G() { panic(2) }\n",
	})

	sub := filepath.Join(dir, "b")
	res, err := Analyze(context.Background(), Options{Paths: []string{sub}, Since: first, Logger: logging.Discard()})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, filepath.Join(sub, "new.go"), res.Issues[0].Location.Path)
}
