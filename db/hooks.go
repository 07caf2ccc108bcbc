package db

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Hook interface
// ─────────────────────────────────────────────────────────────────────────────

// Hook observes every statement the repositories send. BeforeQuery and
// AfterQuery see the same ctx, query and args.
//
// Hooks run on the caller's goroutine and may be shared between goroutines.
// A panicking hook is logged and skipped; the statement still completes.
type Hook interface {
	BeforeQuery(ctx context.Context, query string, args []any)

	// AfterQuery receives the driver time and the mapped error the caller
	// gets back. For QueryRow it fires from Row.Scan, so a lookup that
	// matched nothing arrives as ErrNotFound.
	AfterQuery(ctx context.Context, query string, args []any, duration time.Duration, err error)
}

// ─────────────────────────────────────────────────────────────────────────────
// hookChain
// ─────────────────────────────────────────────────────────────────────────────

// hookChain fans a statement out to the configured hooks in order.
type hookChain []Hook

func newHookChain(hooks []Hook) hookChain {
	var c hookChain
	for _, h := range hooks {
		if h != nil {
			c = append(c, h)
		}
	}
	return c
}

func (c hookChain) Before(ctx context.Context, query string, args []any) {
	for _, h := range c {
		guard("BeforeQuery", func() { h.BeforeQuery(ctx, query, args) })
	}
}

func (c hookChain) After(ctx context.Context, query string, args []any, d time.Duration, err error) {
	for _, h := range c {
		guard("AfterQuery", func() { h.AfterQuery(ctx, query, args, d, err) })
	}
}

func guard(phase string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("blogstore/db: hook panicked", "phase", phase, "panic", p)
		}
	}()
	fn()
}

// ─────────────────────────────────────────────────────────────────────────────
// Built-in hooks
// ─────────────────────────────────────────────────────────────────────────────

// ── Logging hook ─────────────────────────────────────────────────────────────

// LogHookConfig configures the statement logger.
type LogHookConfig struct {
	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
	// SlowQueryThreshold turns entries slower than this into warnings.
	// Zero disables it.
	SlowQueryThreshold time.Duration
	// LogArgs adds bound parameters to every entry. User names and comment
	// text end up in the log when set.
	LogArgs bool
}

// NewLogHook returns a Hook that writes one slog entry per statement. Every
// entry carries the statement verb as "op" so it lines up with the
// blogstore_db_queries_total series.
//
// Levels:
//
//	error  the statement failed
//	warn   slower than SlowQueryThreshold
//	debug  everything else, including a lookup that matched no row
func NewLogHook(cfg LogHookConfig) Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &logHook{cfg: cfg, logger: logger}
}

type logHook struct {
	cfg    LogHookConfig
	logger *slog.Logger
}

func (h *logHook) BeforeQuery(context.Context, string, []any) {}

func (h *logHook) AfterQuery(ctx context.Context, query string, args []any, d time.Duration, err error) {
	attrs := []any{
		slog.String("op", Verb(query)),
		slog.String("query", trimQuery(query)),
		slog.Duration("duration", d),
	}
	if h.cfg.LogArgs && len(args) > 0 {
		attrs = append(attrs, slog.Any("args", args))
	}

	switch {
	case IsNotFound(err):
		// FindByID on a missing id is a normal answer, not a failure.
		h.logger.DebugContext(ctx, "blogstore/db: no rows", attrs...)
	case err != nil:
		h.logger.ErrorContext(ctx, "blogstore/db: statement failed", append(attrs, slog.Any("error", err))...)
	case h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold:
		h.logger.WarnContext(ctx, "blogstore/db: slow statement", attrs...)
	default:
		h.logger.DebugContext(ctx, "blogstore/db: statement", attrs...)
	}
}

// trimQuery collapses the indentation of the repositories' multi-line SQL
// constants and caps the result at maxLoggedQuery bytes.
func trimQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > maxLoggedQuery {
		return q[:maxLoggedQuery] + "…"
	}
	return q
}

const maxLoggedQuery = 300

// ── Metrics hook ─────────────────────────────────────────────────────────────

// MetricsCollector receives one observation per statement. The metrics
// package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordQuery is called after every statement. op is the leading SQL
	// verb in upper case ("SELECT", "INSERT", ...).
	RecordQuery(op string, duration time.Duration, err error)
}

// NewMetricsHook returns a Hook that delegates to a MetricsCollector.
func NewMetricsHook(collector MetricsCollector) Hook {
	return &metricsHook{c: collector}
}

type metricsHook struct{ c MetricsCollector }

func (h *metricsHook) BeforeQuery(_ context.Context, _ string, _ []any) {}
func (h *metricsHook) AfterQuery(_ context.Context, query string, _ []any, d time.Duration, err error) {
	h.c.RecordQuery(Verb(query), d, err)
}

// Verb returns the first keyword of a statement in upper case, or "OTHER".
func Verb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "OTHER"
	}
	return strings.ToUpper(strings.TrimLeft(fields[0], "("))
}
