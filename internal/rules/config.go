package rules

import (
	"fmt"
	"strings"

	"github.com/ejagojo/SentryCheck/internal/syntax"
)

// Checker kinds accepted in rule configuration.
const (
	KindQuery   = "query"
	KindPattern = "pattern"
	KindSyntax  = "syntax"
)

// RuleConfig is one rule definition from configuration.
type RuleConfig struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	Severity    string `yaml:"severity" json:"severity"`
	Activated   *bool  `yaml:"activated,omitempty" json:"activated,omitempty"`
	Kind        string `yaml:"kind" json:"kind"`
	Language    string `yaml:"language,omitempty" json:"language,omitempty"`
	Query       string `yaml:"query,omitempty" json:"query,omitempty"`
	Pattern     string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Message     string `yaml:"message,omitempty" json:"message,omitempty"`
}

// IsActivated returns the configured activation, defaulting to true.
func (c RuleConfig) IsActivated() bool {
	return c.Activated == nil || *c.Activated
}

// Build compiles the definition into a rule.
func (c RuleConfig) Build() (*Rule, error) {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidRule)
	}

	severity := SeverityMedium
	if c.Severity != "" {
		var err error
		if severity, err = ParseSeverity(c.Severity); err != nil {
			return nil, err
		}
	}

	var lang syntax.Language
	if c.Language != "" {
		var err error
		if lang, err = syntax.ParseLanguage(c.Language); err != nil {
			return nil, err
		}
	}

	message := c.Message
	if message == "" {
		message = c.Description
	}

	rule := New(id, c.Description, severity, nil, c.IsActivated())
	switch strings.ToLower(c.Kind) {
	case KindQuery:
		if lang == "" {
			return nil, fmt.Errorf("%w: query rule needs a language", ErrInvalidRule)
		}
		if c.Query == "" {
			return nil, fmt.Errorf("%w: query rule needs a query", ErrInvalidRule)
		}
		checker, err := NewQueryChecker(rule, lang, c.Query, message)
		if err != nil {
			return nil, err
		}
		rule.Checker = checker
	case KindPattern:
		if c.Pattern == "" {
			return nil, fmt.Errorf("%w: pattern rule needs a pattern", ErrInvalidRule)
		}
		checker, err := NewPatternChecker(rule, lang, c.Pattern, message)
		if err != nil {
			return nil, err
		}
		rule.Checker = checker
	case KindSyntax:
		rule.Checker = NewSyntaxChecker(rule)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, c.Kind)
	}
	return rule, nil
}

// BuildRegistry compiles and registers every definition. Any failure aborts
// the whole build: a partial rule set would under-report.
func BuildRegistry(configs []RuleConfig) (*Registry, error) {
	reg := NewRegistry()
	for i, c := range configs {
		rule, err := c.Build()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, c.ID, err)
		}
		if err := reg.Register(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, c.ID, err)
		}
	}
	return reg, nil
}

// ApplyToggles activates and deactivates rules by ID. Disables win over
// enables for the same ID.
func ApplyToggles(reg *Registry, enable, disable []string) error {
	for _, id := range enable {
		if err := reg.SetActivation(id, true); err != nil {
			return err
		}
	}
	for _, id := range disable {
		if err := reg.SetActivation(id, false); err != nil {
			return err
		}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// DefaultRules returns the built-in rule set used when configuration defines
// no rules.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			ID:          "syntax-error",
			Description: "Source does not parse",
			Severity:    string(SeverityHigh),
			Kind:        KindSyntax,
		},
		{
			ID:          "go-panic-call",
			Description: "Call to panic in library code",
			Severity:    string(SeverityMedium),
			Kind:        KindQuery,
			Language:    string(syntax.LanguageGo),
			Query:       `((call_expression function: (identifier) @fn) @issue (#eq? @fn "panic"))`,
			Message:     "avoid panic; return an error instead",
		},
		{
			ID:          "py-eval-call",
			Description: "Use of eval",
			Severity:    string(SeverityHigh),
			Kind:        KindQuery,
			Language:    string(syntax.LanguagePython),
			Query:       `((call function: (identifier) @fn) @issue (#eq? @fn "eval"))`,
			Message:     "eval executes arbitrary code: {{text}}",
		},
		{
			ID:          "js-eval-call",
			Description: "Use of eval",
			Severity:    string(SeverityHigh),
			Kind:        KindQuery,
			Language:    string(syntax.LanguageJavaScript),
			Query:       `((call_expression function: (identifier) @fn) @issue (#eq? @fn "eval"))`,
			Message:     "eval executes arbitrary code: {{text}}",
		},
		{
			ID:          "hardcoded-secret",
			Description: "Hardcoded credential",
			Severity:    string(SeverityCritical),
			Kind:        KindPattern,
			Pattern:     `(?i)(?:token|key|secret|password)\s*[:=]\s*['"]?([a-zA-Z0-9_\-]{32,})['"]?`,
			Message:     "possible hardcoded credential",
		},
		{
			ID:          "todo-comment",
			Description: "Unresolved TODO or FIXME",
			Severity:    string(SeverityInfo),
			Activated:   boolPtr(false),
			Kind:        KindPattern,
			Pattern:     `\b(TODO|FIXME)\b`,
			Message:     "unresolved {{text}}",
		},
	}
}
