// Package logger configures zerolog for the CLI and hands out
// component-scoped children. Library packages log through zerolog.Ctx and
// never touch the root logger directly.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the logger
type Options struct {
	Level     string
	Format    string // "console" or "json"
	Component string
	Writer    io.Writer
}

// Logger is an alias so callers don't import zerolog just for the type
type Logger = zerolog.Logger

var (
	mu   sync.Mutex
	root atomic.Pointer[zerolog.Logger]
)

// New builds a logger from opt without touching the process root
func New(opt Options) Logger {
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.ToLower(opt.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if opt.Component != "" {
		ctx = ctx.Str("component", opt.Component)
	}
	return ctx.Logger()
}

// Init replaces the process root logger. The CLI calls it once flags and
// config are resolved.
func Init(opt Options) *Logger {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log := New(opt)
	root.Store(&log)
	return &log
}

// Get returns the root logger, initialising an info-level console logger
// on first use
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	return Init(Options{Level: "info", Format: "console"})
}

// Named returns a child logger with a component field
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	ll := Get().With().Str("component", component).Logger()
	return &ll
}

// WithRun attaches a child logger carrying run_id to ctx, for zerolog.Ctx
func WithRun(ctx context.Context, runID string) context.Context {
	ll := Get().With().Str("run_id", runID).Logger()
	return ll.WithContext(ctx)
}

// parseLevel falls back to info for anything unrecognised
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
