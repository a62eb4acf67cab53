package security

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejagojo/SentryCheck/internal/logging"
	"github.com/ejagojo/SentryCheck/internal/rules"
	"github.com/ejagojo/SentryCheck/internal/runner"
	"github.com/ejagojo/SentryCheck/internal/syntax"
)

func analyze(t *testing.T, dir string) []runner.Result {
	t.Helper()

	reg, err := rules.BuildRegistry(rules.DefaultRules())
	require.NoError(t, err)

	files, err := syntax.Collect(context.Background(), syntax.CollectOptions{MaxFileSize: syntax.MaxFileSize}, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := runner.New(reg, runner.WithLogger(logging.Discard())).RunFiles(ctx, files)
	require.NoError(t, err)
	return results
}

func TestZipBombIgnored(t *testing.T) {
	dir := t.TempDir()
	CreateZipBomb(t, filepath.Join(dir, "bomb.zip"), 1<<30)

	assert.Empty(t, analyze(t, dir), "archives are never expanded or analysed")
}

func TestSymlinkLoop(t *testing.T) {
	dir := t.TempDir()
	CreateSymlinkLoop(t, dir)

	// Symlinks are not followed, so the loop terminates with nothing to do.
	assert.Empty(t, analyze(t, dir))
}

func TestBinaryBomb(t *testing.T) {
	dir := t.TempDir()
	CreateBinaryBomb(t, filepath.Join(dir, "bomb.go"))

	results := analyze(t, dir)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, syntax.ErrInvalidContent)
	assert.Empty(t, results[0].Issues)
}

func TestOversizedFileSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.go")
	CreateOversized(t, path, syntax.MaxFileSize)

	assert.Empty(t, analyze(t, dir))

	_, err := syntax.ParseFile(context.Background(), path)
	assert.ErrorIs(t, err, syntax.ErrFileTooLarge)
}

func TestDeepDirectories(t *testing.T) {
	dir := t.TempDir()
	CreateDeepTree(t, dir, 100, "package deep\n\nfunc F() { panic(\"deep\") }\n")

	results := analyze(t, dir)
	require.Len(t, results, 1)
	require.Len(t, results[0].Issues, 1)
	assert.Equal(t, "go-panic-call", results[0].Issues[0].RuleID)
}

func TestDeeplyNestedSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested.py"), []byte(DeeplyNested(5000)), 0644))

	done := make(chan []runner.Result, 1)
	go func() { done <- analyze(t, dir) }()

	select {
	case results := <-done:
		require.Len(t, results, 1)
		assert.NoError(t, results[0].Err)
	case <-time.After(30 * time.Second):
		t.Fatal("analysis of deeply nested source did not finish")
	}
}
