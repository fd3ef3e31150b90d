package engine

import (
	"context"
	"log/slog"
)

// discardHandler is a slog.Handler that discards everything, matching the
// behavior of slog.DiscardHandler (added in Go 1.24) on older toolchains.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
