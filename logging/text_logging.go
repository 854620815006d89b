package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"
)

// TextHandler writes one line per record, led by the instanceID attr in
// brackets so the output of one writer or task can be filtered with grep:
//
//	2024/05/01 12:00:00 INFO [writer-0] delivery failed label=job_0_1 retryable=true
//
// Groups qualify keys with dots.
type TextHandler struct {
	instanceID string
	group      string      // Prefix for keys added after WithGroup
	mu         *sync.Mutex // Shared by derived handlers to serialize writes to out
	attrs      []slog.Attr // Already qualified by group
	out        io.Writer
	now        func() time.Time
}

// NewTextHandler writes to stderr.
func NewTextHandler() *TextHandler {
	return NewTextHandlerWriter(os.Stderr)
}

func NewTextHandlerWriter(out io.Writer) *TextHandler {
	return &TextHandler{
		mu:         &sync.Mutex{},
		instanceID: "root",
		out:        out,
		now:        time.Now,
	}
}

func (h *TextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= globalLevel.Level()
}

func (h *TextHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := make([]byte, 0, 1024)
	buf = h.now().AppendFormat(buf, "2006/01/02 15:04:05")
	buf = fmt.Appendf(buf, " %s [%s] %s", r.Level, h.instanceID, r.Message)

	for _, a := range h.attrs {
		buf = appendAttr(buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, h.group, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

// WithAttrs moves an ungrouped instanceID attr into the line prefix.
func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		if a.Key == "instanceID" && h.group == "" {
			next.instanceID = a.Value.String()
			continue
		}
		a.Key = h.group + a.Key
		next.attrs = append(next.attrs, a)
	}
	return next
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.group = h.group + name + "."
	return next
}

func (h *TextHandler) clone() *TextHandler {
	return &TextHandler{
		mu:         h.mu,
		instanceID: h.instanceID,
		group:      h.group,
		attrs:      slices.Clone(h.attrs),
		out:        h.out,
		now:        h.now,
	}
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	value := a.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range value.Group() {
			buf = appendAttr(buf, prefix, ga)
		}
		return buf
	}

	buf = fmt.Appendf(buf, " %s%s=", prefix, a.Key)
	s := value.String()
	if needsQuoting(s) {
		return fmt.Appendf(buf, "%q", s)
	}
	return append(buf, s...)
}

// needsQuoting reports whether a value would be ambiguous unquoted: empty, or
// holding spaces, '=' or unprintable runes.
func needsQuoting(s string) bool {
	return s == "" || strings.IndexFunc(s, func(r rune) bool {
		return r == '=' || r == unicode.ReplacementChar || unicode.IsSpace(r) || !unicode.IsPrint(r)
	}) >= 0
}
