package rules

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ejagojo/SentryCheck/internal/syntax"
)

// Severity ranks how serious an issue is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Rank orders severities from info (0) to critical (4). Unknown values rank
// with info.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Checker is the analysis logic behind a rule.
type Checker interface {
	// Check inspects one syntax unit and returns the issues it found. Issues
	// returned together with a non-nil error are kept.
	Check(ctx context.Context, unit *syntax.Unit) ([]Issue, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, unit *syntax.Unit) ([]Issue, error)

// Check calls f(ctx, unit).
func (f CheckerFunc) Check(ctx context.Context, unit *syntax.Unit) ([]Issue, error) {
	return f(ctx, unit)
}

// Rule is a named, independently toggleable check. Rules are shared by
// pointer; SetActivated is observed by every holder.
type Rule struct {
	id          string
	Description string
	Severity    Severity
	Checker     Checker

	activated atomic.Bool
}

// New creates a rule.
func New(id, description string, severity Severity, checker Checker, activated bool) *Rule {
	r := &Rule{
		id:          id,
		Description: description,
		Severity:    severity,
		Checker:     checker,
	}
	r.activated.Store(activated)
	return r
}

// ID returns the rule's identifier.
func (r *Rule) ID() string { return r.id }

// Activated reports whether the rule takes part in analysis.
func (r *Rule) Activated() bool { return r.activated.Load() }

// SetActivated toggles the rule in place.
func (r *Rule) SetActivated(on bool) { r.activated.Store(on) }

// NewIssue builds an issue for this rule with the rule's severity.
func (r *Rule) NewIssue(loc Location, message string) Issue {
	return Issue{
		RuleID:   r.id,
		Location: loc,
		Message:  message,
		Severity: r.Severity,
		Kind:     KindIssue,
	}
}
