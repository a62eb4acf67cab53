package syntax

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// MaxFileSize is the largest source file Parse accepts (10MB).
const MaxFileSize = 10 * 1024 * 1024

var (
	// ErrFileTooLarge is returned when content exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrInvalidContent is returned for content that is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrUnsupportedLanguage is returned when no grammar is known for a file.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Language identifies a tree-sitter grammar.
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageBash       Language = "bash"
)

var extensions = map[string]Language{
	".go":   LanguageGo,
	".py":   LanguagePython,
	".js":   LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".cjs":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".sh":   LanguageBash,
	".bash": LanguageBash,
}

// Languages returns every supported language.
func Languages() []Language {
	return []Language{LanguageGo, LanguagePython, LanguageJavaScript, LanguageTypeScript, LanguageBash}
}

// DetectLanguage maps a file path to a language by extension.
func DetectLanguage(path string) (Language, bool) {
	lang, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// ParseLanguage validates a language name from configuration.
func ParseLanguage(name string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(name)))
	if Grammar(lang) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, name)
	}
	return lang, nil
}

// Grammar returns the tree-sitter grammar for lang, or nil if unknown.
func Grammar(lang Language) *sitter.Language {
	switch lang {
	case LanguageGo:
		return golang.GetLanguage()
	case LanguagePython:
		return python.GetLanguage()
	case LanguageJavaScript:
		return javascript.GetLanguage()
	case LanguageTypeScript:
		return typescript.GetLanguage()
	case LanguageBash:
		return bash.GetLanguage()
	default:
		return nil
	}
}

// Unit is one parsed source file.
type Unit struct {
	Path     string
	Language Language
	Source   []byte
	Tree     *sitter.Tree
}

// Root returns the root node of the unit's syntax tree.
func (u *Unit) Root() *sitter.Node {
	if u.Tree == nil {
		return nil
	}
	return u.Tree.RootNode()
}

// Close releases the tree-sitter tree.
func (u *Unit) Close() {
	if u.Tree != nil {
		u.Tree.Close()
		u.Tree = nil
	}
}

// Parse builds a Unit from source content. A parser is created per call so
// Parse is safe for concurrent use.
func Parse(ctx context.Context, path string, content []byte) (*Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	lang, ok := DetectLanguage(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}
	return ParseAs(ctx, lang, path, content)
}

// ParseAs is Parse with an explicit language.
func ParseAs(ctx context.Context, lang Language, path string, content []byte) (*Unit, error) {
	if int64(len(content)) > MaxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), MaxFileSize)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidContent, path)
	}

	grammar := Grammar(lang)
	if grammar == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &Unit{
		Path:     filepath.ToSlash(path),
		Language: lang,
		Source:   content,
		Tree:     tree,
	}, nil
}

// ParseFile reads and parses a file from disk.
func ParseFile(ctx context.Context, path string) (*Unit, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, path, content)
}
