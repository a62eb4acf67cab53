package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

const (
	maxRetries = 3
	maxAge     = 10 * time.Minute
	nonceSize  = 32
	algorithm  = "HMAC-SHA256"
)

// For testing purposes
var (
	baseDelay = 500 * time.Millisecond
	testNonce = ""
)

// Webhook delivers signed issue reports over HTTP.
type Webhook struct {
	url      string
	secret   []byte
	client   *http.Client
	repo     string
	gitRef   string
	nonces   map[string]time.Time
	nonceMux sync.RWMutex
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithSource records the analysed repository and ref in every payload.
func WithSource(repo, gitRef string) Option {
	return func(w *Webhook) {
		w.repo = repo
		w.gitRef = gitRef
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// NewWebhook creates a new webhook alert instance
func NewWebhook(url string, secret string, opts ...Option) *Webhook {
	w := &Webhook{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		nonces: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Payload represents the webhook payload
type Payload struct {
	RunID       string        `json:"run_id"`
	Summary     string        `json:"summary"`
	Issues      []rules.Issue `json:"issues"`
	Repo        string        `json:"repo"`
	GitRef      string        `json:"git_ref"`
	GeneratedAt time.Time     `json:"generated_at"`
	Nonce       string        `json:"nonce"`
	Sign        *Signature    `json:"signature,omitempty"`
}

// Signature represents the HMAC signature
type Signature struct {
	Algorithm string `json:"alg"`
	Value     string `json:"sig"`
}

func (w *Webhook) Name() string { return "webhook" }

// Report sends all issues as one signed payload.
func (w *Webhook) Report(ctx context.Context, issues []rules.Issue) error {
	if issues == nil {
		issues = []rules.Issue{}
	}
	return w.Send(ctx, &Payload{
		RunID:       uuid.NewString(),
		Summary:     fmt.Sprintf("Found %d issues", len(issues)),
		Issues:      issues,
		Repo:        w.repo,
		GitRef:      w.gitRef,
		GeneratedAt: time.Now(),
	})
}

// generateNonce creates a new random nonce
func (w *Webhook) generateNonce() (string, error) {
	if testNonce != "" {
		return testNonce, nil
	}
	nonceBytes := make([]byte, nonceSize)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(nonceBytes), nil
}

// isNonceUsed checks if a nonce has been used and not expired
func (w *Webhook) isNonceUsed(nonce string) bool {
	w.nonceMux.RLock()
	timestamp, exists := w.nonces[nonce]
	w.nonceMux.RUnlock()

	if !exists {
		return false
	}

	// If the nonce has expired, remove it and return false
	if time.Since(timestamp) > maxAge {
		w.nonceMux.Lock()
		delete(w.nonces, nonce)
		w.nonceMux.Unlock()
		return false
	}

	return true
}

// cleanupNonces removes expired nonces
func (w *Webhook) cleanupNonces() {
	w.nonceMux.Lock()
	defer w.nonceMux.Unlock()

	now := time.Now()
	for nonce, timestamp := range w.nonces {
		if now.Sub(timestamp) > maxAge {
			delete(w.nonces, nonce)
		}
	}
}

// storeNonce stores a nonce with its timestamp
func (w *Webhook) storeNonce(nonce string, timestamp time.Time) {
	w.nonceMux.Lock()
	w.nonces[nonce] = timestamp
	w.nonceMux.Unlock()
}

// Send signs and posts the payload, retrying on transport errors and non-2xx
// responses.
func (w *Webhook) Send(ctx context.Context, payload *Payload) error {
	if time.Since(payload.GeneratedAt) > maxAge {
		return fmt.Errorf("payload timestamp expired")
	}

	nonce, err := w.generateNonce()
	if err != nil {
		return err
	}
	if w.isNonceUsed(nonce) {
		return fmt.Errorf("replay attack detected")
	}
	payload.Nonce = nonce

	signature, err := w.signPayload(payload)
	if err != nil {
		return fmt.Errorf("failed to sign payload: %w", err)
	}
	payload.Sign = signature

	w.storeNonce(nonce, payload.GeneratedAt)
	w.cleanupNonces()

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * baseDelay):
			}
		}

		lastErr = w.post(ctx, jsonPayload)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}

// signPayload creates an HMAC-SHA256 signature for the payload
func (w *Webhook) signPayload(payload *Payload) (*Signature, error) {
	mac, err := w.mac(payload)
	if err != nil {
		return nil, err
	}
	return &Signature{
		Algorithm: algorithm,
		Value:     mac,
	}, nil
}

// mac computes the signature over the payload with Sign cleared.
func (w *Webhook) mac(payload *Payload) (string, error) {
	origSig := payload.Sign
	payload.Sign = nil
	data, err := json.Marshal(payload)
	payload.Sign = origSig
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	h := hmac.New(sha256.New, w.secret)
	h.Write(data)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// Verify checks a received payload's age and signature. Receivers share the
// sender's secret.
func (w *Webhook) Verify(payload *Payload) error {
	if time.Since(payload.GeneratedAt) > maxAge {
		return fmt.Errorf("timestamp expired")
	}

	if payload.Sign == nil {
		return fmt.Errorf("no signature provided")
	}

	if payload.Sign.Algorithm != algorithm {
		return fmt.Errorf("unsupported signature algorithm: %s", payload.Sign.Algorithm)
	}

	expected, err := w.mac(payload)
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(payload.Sign.Value), []byte(expected)) {
		return fmt.Errorf("signature verification failed")
	}

	return nil
}
