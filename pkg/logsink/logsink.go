// Package logsink adapts log/slog to a plain line callback.
//
// Collaborators such as a dashboard want log output as text lines
// ("onLog(text)"). Handler renders each record as
//
//	LEVEL message key=value key2="quoted value"
//
// and passes it to a func(string). Components log through an ordinary
// *slog.Logger, so the same code writes to stderr in the CLI and to a UI
// pane or test recorder elsewhere.
package logsink

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Handler is a slog.Handler that emits one text line per record.
type Handler struct {
	fn     func(string)
	level  slog.Leveler
	prefix string // group prefix, "a.b."
	attrs  string // pre-rendered WithAttrs output
}

// New returns a Handler passing lines to fn. A nil level means Info.
func New(fn func(string), level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{fn: fn, level: level}
}

// Logger is shorthand for slog.New(New(fn, level)).
func Logger(fn func(string), level slog.Leveler) *slog.Logger {
	return slog.New(New(fn, level))
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	h.fn(b.String())
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	h2 := *h
	h2.attrs = b.String()
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	s := v.String()
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		s = strconv.Quote(s)
	}
	b.WriteString(s)
}

// Recorder collects lines in memory. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Write appends line. Its signature matches the callback New expects.
func (r *Recorder) Write(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

// Lines returns a copy of everything recorded so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
