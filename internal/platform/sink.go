package platform

import (
	"context"
	"fmt"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

// Sink reports issues to the external platform, one event per issue.
type Sink struct {
	adapter *Adapter
}

// NewSink returns a reporter sink over a.
func NewSink(a *Adapter) *Sink {
	return &Sink{adapter: a}
}

func (s *Sink) Name() string { return "platform" }

// Report emits every issue followed by a summary line. A cancelled context
// emits nothing.
func (s *Sink) Report(ctx context.Context, issues []rules.Issue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, issue := range issues {
		s.adapter.Log(issueLevel(issue), fmt.Sprintf("[%s] %s %s", issue.RuleID, issue.Location, issue.Message))
	}
	s.adapter.Log(LevelInfo, fmt.Sprintf("%d issue(s) reported", len(issues)))
	return nil
}

func issueLevel(issue rules.Issue) Level {
	if issue.IsFailure() {
		return LevelError
	}
	switch issue.Severity {
	case rules.SeverityCritical, rules.SeverityHigh:
		return LevelError
	case rules.SeverityMedium, rules.SeverityLow:
		return LevelWarn
	default:
		return LevelInfo
	}
}
