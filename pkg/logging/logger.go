// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package logging provides structured logging for the job ingest core.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger is the interface used throughout the ingest core, the workcrew
// pool, and the attach client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

type slogLogger struct {
	logger *slog.Logger
}

// Format is the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures a Logger.
type Config struct {
	Level   slog.Level
	Format  Format
	Output  *os.File
	Rank    int // FLUID generator_id or producer rank, when known
	Service string
}

// DefaultConfig returns sane defaults for a broker-hosted module.
func DefaultConfig() *Config {
	return &Config{
		Level:   slog.LevelInfo,
		Format:  FormatText,
		Output:  os.Stderr,
		Service: "job-ingest",
	}
}

// New creates a Logger from config; a nil config uses DefaultConfig.
func New(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: config.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	service := config.Service
	if service == "" {
		service = "job-ingest"
	}
	logger := slog.New(handler).With("service", service, "rank", config.Rank)
	return &slogLogger{logger: logger}
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

// WithContext pulls well-known correlation values out of ctx. Flux threads a
// job FLUID and a matchtag through most RPC-bound contexts.
func (l *slogLogger) WithContext(ctx context.Context) Logger {
	attrs := make([]any, 0, 4)
	if id, ok := ctx.Value(jobIDKey{}).(uint64); ok {
		attrs = append(attrs, "jobid", id)
	}
	if tag, ok := ctx.Value(matchtagKey{}).(uint32); ok {
		attrs = append(attrs, "matchtag", tag)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

type jobIDKey struct{}
type matchtagKey struct{}

// WithJobID returns a context carrying id for later WithContext extraction.
func WithJobID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// WithMatchtag returns a context carrying an RPC matchtag.
func WithMatchtag(ctx context.Context, tag uint32) context.Context {
	return context.WithValue(ctx, matchtagKey{}, tag)
}

// NoOpLogger discards everything; it is the default when a component is
// constructed without an explicit Logger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...any)          {}
func (NoOpLogger) Info(msg string, args ...any)           {}
func (NoOpLogger) Warn(msg string, args ...any)           {}
func (NoOpLogger) Error(msg string, args ...any)          {}
func (NoOpLogger) With(args ...any) Logger                { return NoOpLogger{} }
func (NoOpLogger) WithContext(ctx context.Context) Logger { return NoOpLogger{} }

// Or returns l if non-nil, else a NoOpLogger. Constructors across the
// codebase call this instead of repeating the nil check themselves.
func Or(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
