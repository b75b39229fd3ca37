// Package logger provides process-wide structured logging on top of
// log/slog, with a colorized text handler for terminals and a JSON
// handler for machine consumption. Request-scoped fields stored in a
// context are injected by the *Ctx logging functions.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Config selects the logger's level, format and destination.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	levelVar = new(slog.LevelVar)

	mu       sync.RWMutex
	out      io.Writer = os.Stdout
	format             = "text"
	useColor           = isTerminal(os.Stdout.Fd())
	log      *slog.Logger
)

func init() {
	rebuild()
}

// rebuild swaps in a handler matching the current output and format.
// Callers must hold mu.
func rebuild() {
	opts := &slog.HandlerOptions{Level: levelVar}
	if format == "json" {
		log = slog.New(slog.NewJSONHandler(out, opts))
	} else {
		log = slog.New(NewColorTextHandler(out, opts, useColor))
	}
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// Init applies cfg to the process logger. Output may name a file,
// which is opened in append mode without color.
func Init(cfg Config) error {
	mu.Lock()
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
		useColor = isTerminal(os.Stdout.Fd())
	case "stderr":
		out = os.Stderr
		useColor = isTerminal(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			mu.Unlock()
			return fmt.Errorf("opening log file %q: %w", cfg.Output, err)
		}
		out = f
		useColor = false
	}
	if f := strings.ToLower(cfg.Format); f == "text" || f == "json" {
		format = f
	}
	rebuild()
	mu.Unlock()

	if lvl, ok := parseLevel(cfg.Level); ok {
		levelVar.Set(lvl)
	}
	return nil
}

// InitWithWriter points the logger at an arbitrary writer. Meant for
// tests that capture log output.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	out = w
	useColor = enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	if lvl, ok := parseLevel(level); ok {
		levelVar.Set(lvl)
	}
}

// SetFormat switches between text and json output. Other values are
// ignored.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}
	mu.Lock()
	format = f
	rebuild()
	mu.Unlock()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func enabled(lvl slog.Level) bool {
	return lvl >= levelVar.Level()
}

// Debug logs at debug level. Args alternate keys and values as in slog.
func Debug(msg string, args ...any) {
	if enabled(slog.LevelDebug) {
		current().Debug(msg, args...)
	}
}

// Info logs at info level.
func Info(msg string, args ...any) {
	if enabled(slog.LevelInfo) {
		current().Info(msg, args...)
	}
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	if enabled(slog.LevelWarn) {
		current().Warn(msg, args...)
	}
}

// Error logs at error level.
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// DebugCtx logs at debug level, prepending the request fields carried
// by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelDebug) {
		current().Debug(msg, withContextFields(ctx, args)...)
	}
}

// InfoCtx logs at info level with the request fields carried by ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelInfo) {
		current().Info(msg, withContextFields(ctx, args)...)
	}
}

// WarnCtx logs at warn level with the request fields carried by ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if enabled(slog.LevelWarn) {
		current().Warn(msg, withContextFields(ctx, args)...)
	}
}

// ErrorCtx logs at error level with the request fields carried by ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	current().Error(msg, withContextFields(ctx, args)...)
}

// withContextFields prepends the LogContext fields so they sort first
// in the record.
func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 12+len(args))
	if lc.TraceID != "" {
		fields = append(fields, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		fields = append(fields, KeySpanID, lc.SpanID)
	}
	if lc.RequestID != "" {
		fields = append(fields, KeyRequestID, lc.RequestID)
	}
	if lc.ClientIP != "" {
		fields = append(fields, KeyClientIP, lc.ClientIP)
	}
	if lc.Username != "" {
		fields = append(fields, KeyUsername, lc.Username)
	}
	if lc.AuthSource != "" {
		fields = append(fields, KeyAuthSource, lc.AuthSource)
	}
	return append(fields, args...)
}

// With returns a slog.Logger carrying pre-bound attributes.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Duration converts the time elapsed since start to fractional
// milliseconds, the unit used for duration_ms fields.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
