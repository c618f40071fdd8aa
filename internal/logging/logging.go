// Package logging builds the zap logger used across the pipeline and carries
// per-job loggers through context.
package logging

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below zap's Debug level and is rendered as TRACE.
const TraceLevel = zapcore.DebugLevel - 1

// OffLevel disables every message.
const OffLevel = zapcore.FatalLevel + 1

// Options configures New.
type Options struct {
	Level  zapcore.Level
	Output io.Writer // defaults to os.Stderr
}

// New creates a console logger writing to opts.Output.
func New(opts Options) *zap.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    encodeLevel,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(out),
		zap.NewAtomicLevelAt(opts.Level),
	)
	return zap.New(core)
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(l, enc)
}

// Level maps -v occurrences and the quiet flag to a zap level.
func Level(verbose int, quiet bool) zapcore.Level {
	if quiet {
		return OffLevel
	}
	switch verbose {
	case 0:
		return zapcore.WarnLevel
	case 1:
		return zapcore.InfoLevel
	case 2:
		return zapcore.DebugLevel
	default:
		return TraceLevel
	}
}

// Trace logs msg at TraceLevel.
func Trace(log *zap.Logger, msg string, fields ...zap.Field) {
	log.Log(TraceLevel, msg, fields...)
}

type ctxKey struct{}

// Into returns a copy of ctx carrying log.
func Into(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// From returns the logger stored in ctx, or a no-op logger.
func From(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && log != nil {
		return log
	}
	return zap.NewNop()
}

// Job returns the logger fields identifying a worker and its job counter.
func Job(thread, job int) []zap.Field {
	return []zap.Field{zap.Int("thread", thread), zap.Int("job", job)}
}
