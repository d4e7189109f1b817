package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const logTimestampLayout = "2006-01-02 15:04:05"

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiGray   = "\x1b[90m"
)

// consoleHandler writes one line per record:
//
//	2026-03-01 10:00:00 INFO [printer] job 01234567 L4: layer exposed display_seconds=12.5
//
// The component, job, and layer attributes move into the prefix; everything
// else trails as key=value pairs so the file stays greppable line by line.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	prefix    string
	attrs     []slog.Attr
	addSource bool
	color     bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var line lineParts
	for _, a := range h.attrs {
		line.add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		line.add(h.qualify(a))
		return true
	})

	var b strings.Builder
	b.WriteString(ts.In(time.Local).Format(logTimestampLayout))
	b.WriteByte(' ')
	b.WriteString(h.paint(r.Level))
	if line.component != "" {
		fmt.Fprintf(&b, " [%s]", line.component)
	}
	if line.job != "" {
		b.WriteString(" job ")
		b.WriteString(shortJob(line.job))
	}
	if line.layer != "" {
		b.WriteString(" L")
		b.WriteString(line.layer)
	}
	b.WriteString(": ")
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	for _, f := range line.fields {
		b.WriteByte(' ')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(formatValue(f.value))
	}
	if h.addSource && r.PC != 0 {
		if src := r.Source(); src != nil {
			fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(a))
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *consoleHandler) qualify(a slog.Attr) slog.Attr {
	if h.prefix != "" {
		a.Key = h.prefix + a.Key
	}
	return a
}

func (h *consoleHandler) paint(level slog.Level) string {
	label := levelLabel(level)
	if !h.color {
		return label
	}
	switch {
	case level >= slog.LevelError:
		return ansiRed + label + ansiReset
	case level >= slog.LevelWarn:
		return ansiYellow + label + ansiReset
	case level < slog.LevelInfo:
		return ansiGray + label + ansiReset
	}
	return label
}

type field struct {
	key   string
	value slog.Value
}

// lineParts collects the prefix attributes and the remaining fields. A key
// seen twice keeps its position and takes the newer value.
type lineParts struct {
	component string
	job       string
	layer     string
	fields    []field
}

func (p *lineParts) add(a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, inner := range a.Value.Group() {
			if a.Key != "" {
				inner.Key = a.Key + "." + inner.Key
			}
			p.add(inner)
		}
		return
	}
	switch a.Key {
	case FieldComponent:
		p.component = plain(a.Value)
		return
	case FieldJobID:
		p.job = plain(a.Value)
		return
	case FieldLayer:
		p.layer = plain(a.Value)
		return
	}
	for i := range p.fields {
		if p.fields[i].key == a.Key {
			p.fields[i].value = a.Value
			return
		}
	}
	p.fields = append(p.fields, field{key: a.Key, value: a.Value})
}

func shortJob(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func plain(v slog.Value) string {
	if err, ok := v.Any().(error); ok && v.Kind() == slog.KindAny {
		return err.Error()
	}
	return v.String()
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindFloat64:
		s = strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		s = v.Time().In(time.Local).Format(time.RFC3339)
	default:
		s = plain(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
