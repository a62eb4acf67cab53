// Package e2e holds helpers for tests that drive a built sentrycheck binary.
package e2e

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ejagojo/SentryCheck/internal/alert"
	"github.com/ejagojo/SentryCheck/internal/baseline"
	"github.com/ejagojo/SentryCheck/internal/rules"
)

// BinaryEnv names the variable pointing at the binary under test.
const BinaryEnv = "SENTRYCHECK_BIN"

// TestHelper provides utilities for end-to-end tests
type TestHelper struct {
	t       *testing.T
	workDir string
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{
		t:       t,
		workDir: t.TempDir(),
	}
}

// WorkDir is the directory commands run in.
func (h *TestHelper) WorkDir() string { return h.workDir }

// WriteFile creates name under the work directory.
func (h *TestHelper) WriteFile(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.workDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		h.t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		h.t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// RunCommand runs the sentrycheck binary and returns its output. The config
// path is pinned inside the work directory so user config never leaks in.
func (h *TestHelper) RunCommand(args ...string) (string, string, error) {
	bin := os.Getenv(BinaryEnv)
	if bin == "" {
		bin = "sentrycheck"
	}
	args = append(args, "--config="+filepath.Join(h.workDir, ".sentrycheck.yaml"))

	cmd := exec.Command(bin, args...)
	cmd.Dir = h.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// CreateBaseline writes a baseline suppressing issues.
func (h *TestHelper) CreateBaseline(issues []rules.Issue) error {
	bl, err := baseline.Load(h.workDir)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		if err := bl.Add(issue); err != nil && !errors.Is(err, baseline.ErrAlreadyBaselined) {
			return err
		}
	}
	return bl.Save(h.workDir)
}

// WebhookServer records the payloads it receives and checks their signature.
type WebhookServer struct {
	URL string

	mu       sync.Mutex
	payloads []alert.Payload
	rejected int
}

// Payloads returns the verified payloads received so far.
func (s *WebhookServer) Payloads() []alert.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alert.Payload(nil), s.payloads...)
}

// Rejected counts payloads that failed verification.
func (s *WebhookServer) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// StartWebhookServer starts a test webhook server verifying with secret.
// It is closed when the test ends.
func (h *TestHelper) StartWebhookServer(secret string) *WebhookServer {
	ws := &WebhookServer{}
	verifier := alert.NewWebhook("", secret)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload alert.Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		ws.mu.Lock()
		defer ws.mu.Unlock()
		if err := verifier.Verify(&payload); err != nil {
			ws.rejected++
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws.payloads = append(ws.payloads, payload)
		w.WriteHeader(http.StatusOK)
	}))
	h.t.Cleanup(server.Close)

	ws.URL = server.URL
	return ws
}

// AssertOutput asserts that the command output matches the expected pattern
func (h *TestHelper) AssertOutput(stdout, stderr string, expectedPattern string) {
	h.t.Helper()
	if !strings.Contains(stdout+stderr, expectedPattern) {
		h.t.Errorf("output does not contain expected pattern %q", expectedPattern)
	}
}

// AssertExitCode asserts that the command exited with the expected code
func (h *TestHelper) AssertExitCode(err error, expectedCode int) {
	h.t.Helper()
	if err == nil {
		if expectedCode != 0 {
			h.t.Errorf("expected exit code %d, got 0", expectedCode)
		}
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() != expectedCode {
			h.t.Errorf("expected exit code %d, got %d", expectedCode, exitErr.ExitCode())
		}
	} else {
		h.t.Errorf("unexpected error: %v", err)
	}
}
