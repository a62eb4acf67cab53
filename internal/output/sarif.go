package output

import (
	"encoding/json"
	"io"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	toolName     = "SentryCheck"
	toolURI      = "https://github.com/ejagojo/SentryCheck"
)

// writeSARIF writes issues in SARIF format
func writeSARIF(issues []rules.Issue, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(generateSARIF(issues))
}

// generateSARIF builds the SARIF report structure
func generateSARIF(issues []rules.Issue) map[string]interface{} {
	ruleDefs := []map[string]interface{}{}
	results := []map[string]interface{}{}
	seen := make(map[string]bool)

	for _, i := range issues {
		if !seen[i.RuleID] {
			ruleDefs = append(ruleDefs, map[string]interface{}{
				"id": i.RuleID,
				"shortDescription": map[string]interface{}{
					"text": i.RuleID,
				},
				"defaultConfiguration": map[string]interface{}{
					"level": mapSeverityToLevel(i.Severity),
				},
			})
			seen[i.RuleID] = true
		}

		region := map[string]interface{}{}
		if i.Location.StartLine > 0 {
			region["startLine"] = i.Location.StartLine
		}
		if i.Location.StartColumn > 0 {
			region["startColumn"] = i.Location.StartColumn
		}
		if i.Location.EndLine > 0 {
			region["endLine"] = i.Location.EndLine
		}
		if i.Location.EndColumn > 0 {
			region["endColumn"] = i.Location.EndColumn
		}

		physical := map[string]interface{}{
			"artifactLocation": map[string]interface{}{
				"uri": i.Location.Path,
			},
		}
		if len(region) > 0 {
			physical["region"] = region
		}

		result := map[string]interface{}{
			"ruleId":    i.RuleID,
			"level":     mapSeverityToLevel(i.Severity),
			"message":   map[string]interface{}{"text": i.Message},
			"locations": []map[string]interface{}{{"physicalLocation": physical}},
		}
		if i.IsFailure() {
			result["kind"] = "fail"
			result["level"] = "error"
		}
		results = append(results, result)
	}

	return map[string]interface{}{
		"version": sarifVersion,
		"$schema": sarifSchema,
		"runs": []map[string]interface{}{
			{
				"tool": map[string]interface{}{
					"driver": map[string]interface{}{
						"name":           toolName,
						"informationUri": toolURI,
						"rules":          ruleDefs,
					},
				},
				"results": results,
			},
		},
	}
}

// mapSeverityToLevel maps our severity levels to SARIF levels
func mapSeverityToLevel(severity rules.Severity) string {
	switch severity {
	case rules.SeverityCritical, rules.SeverityHigh:
		return "error"
	case rules.SeverityMedium:
		return "warning"
	case rules.SeverityLow, rules.SeverityInfo:
		return "note"
	default:
		return "none"
	}
}
