package logger

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// WatermillAdapter implements watermill.LoggerAdapter on top of slog.
type WatermillAdapter struct {
	log *slog.Logger
}

// NewWatermill wraps log for use by watermill publishers and routers.
func NewWatermill(log *slog.Logger) *WatermillAdapter {
	return &WatermillAdapter{log: log}
}

var _ watermill.LoggerAdapter = &WatermillAdapter{}

func (w *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.log.Error(msg, append(attrs(fields), "error", err)...)
}

// Info maps to debug because watermill is chatty.
func (w *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, attrs(fields)...)
}

func (w *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, attrs(fields)...)
}

func (w *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	w.log.Log(context.Background(), slog.LevelDebug-4, msg, attrs(fields)...)
}

func (w *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{log: w.log.With(attrs(fields)...)}
}

func attrs(fields watermill.LogFields) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
