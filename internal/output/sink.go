package output

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

// Sink writes issues in one format to a writer or a file.
type Sink struct {
	name       string
	outputType OutputType
	w          io.Writer
	path       string
}

// NewWriterSink writes to w.
func NewWriterSink(name string, outputType OutputType, w io.Writer) *Sink {
	return &Sink{name: name, outputType: outputType, w: w}
}

// NewFileSink creates or truncates path on every report.
func NewFileSink(name string, outputType OutputType, path string) *Sink {
	return &Sink{name: name, outputType: outputType, path: path}
}

func (s *Sink) Name() string { return s.name }

// Report writes the whole issue list.
func (s *Sink) Report(_ context.Context, issues []rules.Issue) error {
	if s.path == "" {
		return WriteIssues(issues, s.outputType, s.w)
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteIssues(issues, s.outputType, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
