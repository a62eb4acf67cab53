package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

// OutputType defines the supported output formats
type OutputType string

const (
	OutputTypeConsole OutputType = "console"
	OutputTypeJSON    OutputType = "json"
	OutputTypeSARIF   OutputType = "sarif"
	OutputTypeSonar   OutputType = "sonar"
)

// WriteIssues writes the issues to w in the given format
func WriteIssues(issues []rules.Issue, outputType OutputType, w io.Writer) error {
	switch outputType {
	case OutputTypeConsole:
		return writeConsole(issues, w)
	case OutputTypeJSON:
		return writeJSON(issues, w)
	case OutputTypeSARIF:
		return writeSARIF(issues, w)
	case OutputTypeSonar:
		return writeSonar(issues, w)
	default:
		return fmt.Errorf("unsupported output type: %s", outputType)
	}
}

// writeConsole writes issues in a human-readable table format
func writeConsole(issues []rules.Issue, w io.Writer) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Severity", "Rule", "File", "Line", "Message"})

	for _, i := range issues {
		sev := string(i.Severity)
		if i.IsFailure() {
			sev = "failure"
		}
		t.AppendRow(table.Row{
			sev,
			i.RuleID,
			i.Location.Path,
			i.Location.StartLine,
			i.Message,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(issues)})

	t.Render()
	return nil
}

// writeJSON writes issues as one JSON array. An empty run is "[]", not null.
func writeJSON(issues []rules.Issue, w io.Writer) error {
	if issues == nil {
		issues = []rules.Issue{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(issues)
}
