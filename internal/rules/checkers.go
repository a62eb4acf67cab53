package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ejagojo/SentryCheck/internal/syntax"
)

// maxSyntaxDepth bounds recursion when walking very deep trees.
const maxSyntaxDepth = 2000

// issueCapture is the capture name a query uses to mark the reported node.
const issueCapture = "issue"

// QueryChecker reports every match of a tree-sitter query.
type QueryChecker struct {
	rule     *Rule
	language syntax.Language
	query    *sitter.Query
	capture  string
	message  string
}

// NewQueryChecker compiles query for lang. Matches are reported at the
// @issue capture when the query defines one, otherwise at the first capture
// of each match. "{{text}}" in message is replaced by the node's source.
func NewQueryChecker(rule *Rule, lang syntax.Language, query, message string) (*QueryChecker, error) {
	grammar := syntax.Grammar(lang)
	if grammar == nil {
		return nil, fmt.Errorf("%w: %q", syntax.ErrUnsupportedLanguage, lang)
	}
	q, err := sitter.NewQuery([]byte(query), grammar)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	c := &QueryChecker{
		rule:     rule,
		language: lang,
		query:    q,
		message:  message,
	}
	for i := uint32(0); i < q.CaptureCount(); i++ {
		if q.CaptureNameForId(i) == issueCapture {
			c.capture = issueCapture
		}
	}
	return c, nil
}

// Check runs the query over the unit. Units in other languages yield nothing.
func (c *QueryChecker) Check(_ context.Context, unit *syntax.Unit) ([]Issue, error) {
	if unit.Language != c.language {
		return nil, nil
	}
	root := unit.Root()
	if root == nil {
		return nil, fmt.Errorf("unit %s has no syntax tree", unit.Path)
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(c.query, root)

	var issues []Issue
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, unit.Source)
		for _, capture := range m.Captures {
			if c.capture != "" && c.query.CaptureNameForId(capture.Index) != c.capture {
				continue
			}
			text := capture.Node.Content(unit.Source)
			issues = append(issues, c.rule.NewIssue(
				NodeLocation(unit.Path, capture.Node),
				strings.ReplaceAll(c.message, "{{text}}", firstLine(text)),
			))
			break
		}
	}
	return issues, nil
}

// PatternChecker reports every regexp match, line by line.
type PatternChecker struct {
	rule     *Rule
	language syntax.Language
	pattern  *regexp.Regexp
	message  string
}

// NewPatternChecker compiles pattern. An empty lang matches every unit.
func NewPatternChecker(rule *Rule, lang syntax.Language, pattern, message string) (*PatternChecker, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	if re.MatchString("") {
		return nil, fmt.Errorf("%w: pattern %q matches the empty string", ErrInvalidRule, pattern)
	}
	return &PatternChecker{rule: rule, language: lang, pattern: re, message: message}, nil
}

// Check scans the unit source.
func (c *PatternChecker) Check(_ context.Context, unit *syntax.Unit) ([]Issue, error) {
	if c.language != "" && unit.Language != c.language {
		return nil, nil
	}

	var issues []Issue
	for i, line := range strings.Split(string(unit.Source), "\n") {
		for _, loc := range c.pattern.FindAllStringSubmatchIndex(line, -1) {
			// Zero-width matches such as \b carry no text to report.
			if loc[0] == loc[1] {
				continue
			}
			// First non-empty submatch when present, else the whole match.
			start, end := loc[0], loc[1]
			if len(loc) >= 4 && loc[2] >= 0 && loc[3] > loc[2] {
				start, end = loc[2], loc[3]
			}
			issues = append(issues, c.rule.NewIssue(Location{
				Path:        unit.Path,
				StartLine:   i + 1,
				StartColumn: start + 1,
				EndLine:     i + 1,
				EndColumn:   end + 1,
			}, strings.ReplaceAll(c.message, "{{text}}", line[start:end])))
		}
	}
	return issues, nil
}

// SyntaxChecker reports ERROR and MISSING nodes of the parse tree.
type SyntaxChecker struct {
	rule *Rule
}

// NewSyntaxChecker returns a checker reporting parse errors for rule.
func NewSyntaxChecker(rule *Rule) *SyntaxChecker {
	return &SyntaxChecker{rule: rule}
}

// Check walks the tree looking for error nodes.
func (c *SyntaxChecker) Check(_ context.Context, unit *syntax.Unit) ([]Issue, error) {
	root := unit.Root()
	if root == nil {
		return nil, fmt.Errorf("unit %s has no syntax tree", unit.Path)
	}
	if !root.HasError() {
		return nil, nil
	}
	var issues []Issue
	c.walk(root, unit, &issues, 0)
	return issues, nil
}

func (c *SyntaxChecker) walk(node *sitter.Node, unit *syntax.Unit, issues *[]Issue, depth int) {
	if node == nil || depth > maxSyntaxDepth {
		return
	}

	if node.IsMissing() {
		*issues = append(*issues, c.rule.NewIssue(NodeLocation(unit.Path, node), fmt.Sprintf("missing %s", node.Type())))
		return
	}
	if node.IsError() {
		*issues = append(*issues, c.rule.NewIssue(NodeLocation(unit.Path, node), fmt.Sprintf("syntax error near %q", firstLine(node.Content(unit.Source)))))
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		c.walk(node.Child(i), unit, issues, depth+1)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 80
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
