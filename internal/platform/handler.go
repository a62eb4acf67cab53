package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FromSlog converts a slog level. Anything below slog.LevelDebug is TRACE.
func FromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelDebug:
		return LevelTrace
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}

// Handler is a slog.Handler that sends records through an Adapter as
// "msg key=value ..." lines.
type Handler struct {
	adapter *Adapter
	min     slog.Level
	attrs   []slog.Attr
	group   string
}

// NewHandler returns a handler emitting records at or above min.
func NewHandler(a *Adapter, min slog.Level) *Handler {
	return &Handler{adapter: a, min: min}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	h.adapter.Log(FromSlog(r.Level), b.String())
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	out.attrs = append(out.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		out.attrs = append(out.attrs, a)
	}
	return &out
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	if out.group != "" {
		out.group += "." + name
	} else {
		out.group = name
	}
	return &out
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(b, " %s=%v", key, a.Value.Resolve())
}
