package output

import (
	"encoding/json"
	"io"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

// engineID names this tool in imported platform issues.
const engineID = "sentrycheck"

// sonarReport is the generic external issue import format.
type sonarReport struct {
	Issues []sonarIssue `json:"issues"`
}

type sonarIssue struct {
	EngineID        string        `json:"engineId"`
	RuleID          string        `json:"ruleId"`
	Severity        string        `json:"severity"`
	Type            string        `json:"type"`
	PrimaryLocation sonarLocation `json:"primaryLocation"`
}

type sonarLocation struct {
	Message   string          `json:"message"`
	FilePath  string          `json:"filePath"`
	TextRange *sonarTextRange `json:"textRange,omitempty"`
}

type sonarTextRange struct {
	StartLine   int `json:"startLine"`
	EndLine     int `json:"endLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

// writeSonar writes issues in the generic issue import format.
func writeSonar(issues []rules.Issue, w io.Writer) error {
	report := sonarReport{Issues: make([]sonarIssue, 0, len(issues))}
	for _, i := range issues {
		si := sonarIssue{
			EngineID: engineID,
			RuleID:   i.RuleID,
			Severity: mapSeverityToSonar(i.Severity),
			Type:     "CODE_SMELL",
			PrimaryLocation: sonarLocation{
				Message:  i.Message,
				FilePath: i.Location.Path,
			},
		}
		if i.Severity.Rank() >= rules.SeverityHigh.Rank() {
			si.Type = "BUG"
		}
		if i.Location.StartLine > 0 {
			// Columns are 0-based on the platform side.
			tr := &sonarTextRange{StartLine: i.Location.StartLine, EndLine: i.Location.EndLine}
			if i.Location.StartColumn > 0 && i.Location.EndColumn > 0 && i.Location.EndLine == i.Location.StartLine {
				tr.StartColumn = i.Location.StartColumn - 1
				tr.EndColumn = i.Location.EndColumn - 1
			}
			si.PrimaryLocation.TextRange = tr
		}
		report.Issues = append(report.Issues, si)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func mapSeverityToSonar(severity rules.Severity) string {
	switch severity {
	case rules.SeverityCritical:
		return "CRITICAL"
	case rules.SeverityHigh:
		return "MAJOR"
	case rules.SeverityMedium:
		return "MINOR"
	default:
		return "INFO"
	}
}
