// Package platform bridges sentrycheck to an external code-quality scanning
// platform. The core only sees the narrow Platform interface; nothing here
// depends on a platform SDK.
package platform

import (
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
)

// Level is the internal log severity.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// PlatformLevel is a log level the external platform understands.
type PlatformLevel string

const (
	PlatformDebug PlatformLevel = "DEBUG"
	PlatformInfo  PlatformLevel = "INFO"
	PlatformWarn  PlatformLevel = "WARN"
	PlatformError PlatformLevel = "ERROR"
)

// MapLevel translates an internal level. TRACE has no platform equivalent and
// shares the debug channel with DEBUG.
func MapLevel(l Level) PlatformLevel {
	switch {
	case l <= LevelDebug:
		return PlatformDebug
	case l == LevelInfo:
		return PlatformInfo
	case l == LevelWarn:
		return PlatformWarn
	default:
		return PlatformError
	}
}

// Platform is the call shape the external scanner expects.
type Platform interface {
	Emit(level PlatformLevel, message string)
	// Configure receives opaque key-value properties.
	Configure(props map[string]string)
}

// Adapter forwards internal log events to a Platform. It holds no state of
// its own.
type Adapter struct {
	platform Platform
}

// NewAdapter wraps p.
func NewAdapter(p Platform) *Adapter {
	return &Adapter{platform: p}
}

// Log maps level and emits message.
func (a *Adapter) Log(level Level, message string) {
	a.platform.Emit(MapLevel(level), message)
}

// Configure passes props through unchanged.
func (a *Adapter) Configure(props map[string]string) {
	a.platform.Configure(props)
}

// WriterPlatform writes "LEVEL message" lines to an io.Writer.
type WriterPlatform struct {
	mu    sync.Mutex
	w     io.Writer
	props map[string]string
}

// NewWriterPlatform returns a platform writing to w.
func NewWriterPlatform(w io.Writer) *WriterPlatform {
	return &WriterPlatform{w: w, props: map[string]string{}}
}

// Emit writes one line. Multi-line messages are folded onto one line.
func (p *WriterPlatform) Emit(level PlatformLevel, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", level, strings.ReplaceAll(message, "\n", " "))
}

// Configure stores props; later keys overwrite earlier ones.
func (p *WriterPlatform) Configure(props map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	maps.Copy(p.props, props)
}

// Properties returns a copy of the configured properties.
func (p *WriterPlatform) Properties() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.props)
}
