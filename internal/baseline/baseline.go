package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

const (
	// FileName is the baseline file looked up in the analysed directory.
	FileName = ".sentrycheck_baseline.json"
	version  = "1.0"
)

// ErrAlreadyBaselined is returned by Add for a fingerprint already present.
var ErrAlreadyBaselined = errors.New("issue already in baseline")

// Baseline represents the suppression file
type Baseline struct {
	Version   string    `json:"version"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	Issues    []Entry   `json:"issues"`
}

// Entry represents a suppressed issue
type Entry struct {
	RuleID      string `json:"ruleId"`
	Path        string `json:"path"`
	Line        int    `json:"line"`
	Fingerprint string `json:"fingerprint"`
}

// Load loads the baseline file from the given directory
func Load(dir string) (*Baseline, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile loads a baseline from an explicit path. A missing file is an
// empty baseline.
func LoadFile(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Baseline{
				Version:   version,
				CreatedBy: "sentrycheck",
				CreatedAt: time.Now(),
			}, nil
		}
		return nil, fmt.Errorf("failed to read baseline file: %w", err)
	}

	var baseline Baseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("failed to parse baseline file: %w", err)
	}

	return &baseline, nil
}

// Save saves the baseline file to the given directory
func (b *Baseline) Save(dir string) error {
	path := filepath.Join(dir, FileName)
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Add adds an issue to the baseline
func (b *Baseline) Add(issue rules.Issue) error {
	fp := issue.Fingerprint()
	if b.contains(fp) {
		return ErrAlreadyBaselined
	}

	b.Issues = append(b.Issues, Entry{
		RuleID:      issue.RuleID,
		Path:        issue.Location.Path,
		Line:        issue.Location.StartLine,
		Fingerprint: fp,
	})

	return nil
}

// IsSuppressed checks if an issue is suppressed in the baseline. Analysis
// failures are never suppressed.
func (b *Baseline) IsSuppressed(issue rules.Issue) bool {
	if issue.IsFailure() {
		return false
	}
	return b.contains(issue.Fingerprint())
}

// Filter returns the issues not suppressed, preserving order.
func (b *Baseline) Filter(issues []rules.Issue) []rules.Issue {
	var filtered []rules.Issue
	for _, i := range issues {
		if !b.IsSuppressed(i) {
			filtered = append(filtered, i)
		}
	}
	return filtered
}

func (b *Baseline) contains(fp string) bool {
	for _, e := range b.Issues {
		if e.Fingerprint == fp {
			return true
		}
	}
	return false
}
