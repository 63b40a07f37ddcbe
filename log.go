package recall

import (
	"context"
	"log/slog"
)

// nopLogger discards all output. Used wherever a caller does not supply a
// logger so call sites never nil-check.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// NopLogger returns the shared discard logger for embedding in components.
func NopLogger() *slog.Logger { return nopLogger }
