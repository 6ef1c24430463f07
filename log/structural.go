package log

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// Structural is the default Logger: it writes structured records through
// log/slog, attaching the caller's file and line (computed from calldepth)
// and the severity as a leveled slog attribute.
type Structural struct {
	Handler slog.Handler
}

func (s *Structural) handler() slog.Handler {
	if s.Handler != nil {
		return s.Handler
	}
	return slog.Default().Handler()
}

// Log implements Logger.
func (s *Structural) Log(ctx context.Context, sev Severity, calldepth int, msg string) {
	level := toSlogLevel(sev)
	h := s.handler()
	if !h.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(calldepth+1, pcs[:])
	r := slog.NewRecord(time.Time{}, level, msg, pcs[0])
	_ = h.Handle(ctx, r)
}

func toSlogLevel(sev Severity) slog.Level {
	switch sev {
	case SevDebug:
		return slog.LevelDebug
	case SevInfo:
		return slog.LevelInfo
	case SevWarn:
		return slog.LevelWarn
	case SevError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
