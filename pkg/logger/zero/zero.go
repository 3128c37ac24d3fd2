// Package zero adapts a zerolog.Logger to the logger.Logger interface,
// for callers that already run zerolog (such as the feedtail CLI).
package zero

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pawbase/petsync/pkg/logger"
)

type Handler struct {
	logger zerolog.Logger
}

var _ logger.Logger = (*Handler)(nil)

func New(l zerolog.Logger) *Handler {
	return &Handler{logger: l}
}

func (h *Handler) Error(msg string, args ...any) {
	emit(h.logger.Error(), msg, args)
}

func (h *Handler) Warn(msg string, args ...any) {
	emit(h.logger.Warn(), msg, args)
}

func (h *Handler) Info(msg string, args ...any) {
	emit(h.logger.Info(), msg, args)
}

func (h *Handler) Debug(msg string, args ...any) {
	emit(h.logger.Debug(), msg, args)
}

// emit applies slog-style alternating key-value args to a zerolog event.
// A trailing key without a value is logged under the "arg" field rather
// than dropped.
func emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		ev = ev.Interface(key, args[i+1])
	}
	if len(args)%2 == 1 {
		ev = ev.Interface("arg", args[len(args)-1])
	}
	ev.Msg(msg)
}
