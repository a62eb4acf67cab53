package rules

import (
	"crypto/sha256"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Kind separates rule findings from recovered rule failures.
type Kind string

const (
	KindIssue           Kind = "issue"
	KindAnalysisFailure Kind = "analysis-failure"
)

// Location is a 1-based source range.
type Location struct {
	Path        string `json:"path"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	EndLine     int    `json:"endLine,omitempty"`
	EndColumn   int    `json:"endColumn,omitempty"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Path, l.StartLine, l.StartColumn)
}

// NodeLocation converts a tree-sitter node range into a Location.
func NodeLocation(path string, n *sitter.Node) Location {
	start, end := n.StartPoint(), n.EndPoint()
	return Location{
		Path:        path,
		StartLine:   int(start.Row) + 1,
		StartColumn: int(start.Column) + 1,
		EndLine:     int(end.Row) + 1,
		EndColumn:   int(end.Column) + 1,
	}
}

// Issue is one finding produced by running a rule against a unit.
type Issue struct {
	RuleID   string   `json:"ruleId"`
	Location Location `json:"location"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Kind     Kind     `json:"kind"`
}

// IsFailure reports whether the issue records a failed rule run.
func (i Issue) IsFailure() bool { return i.Kind == KindAnalysisFailure }

// Fingerprint identifies an issue across runs. Identical issues share a
// fingerprint.
func (i Issue) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s", i.RuleID, i.Location.Path, i.Location.StartLine, i.Message)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// AnalysisFailure converts a rule failure into a reportable issue.
func AnalysisFailure(ruleID, path string, err error) Issue {
	return Issue{
		RuleID:   ruleID,
		Location: Location{Path: path},
		Message:  fmt.Sprintf("rule %s failed: %v", ruleID, err),
		Severity: SeverityHigh,
		Kind:     KindAnalysisFailure,
	}
}
