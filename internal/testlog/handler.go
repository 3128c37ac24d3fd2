// Package testlog provides a slog.Handler that prints a message index,
// level, message, and attributes without timestamps, so that test log
// output is deterministic.
package testlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

type Handler struct {
	// mu and index are shared by every handler derived via WithAttrs, so
	// interleaved writes stay serialized and the index never forks.
	mu    *sync.Mutex
	index *int

	out   io.Writer
	attrs []slog.Attr
}

var _ slog.Handler = (*Handler)(nil)

func NewHandler(out io.Writer) *Handler {
	return &Handler{mu: &sync.Mutex{}, index: new(int), out: out}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%d %s %s", *h.index, r.Level, r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')
	*h.index++

	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := &Handler{mu: h.mu, index: h.index, out: h.out}
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return h
}
