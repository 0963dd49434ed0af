package lgr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/mdobak/go-xerrors"
	"github.com/natefinch/lumberjack"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the process-wide logger. All packages log through it.
var Logger *slog.Logger

func init() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		handler = newPrettyHandler(os.Stdout, level)
	} else {
		handler = slog.NewJSONHandler(&lumberjack.Logger{
			Filename:   "ei-go.log",
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		}, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr})
	}

	Logger = slog.New(&contextHandler{handler})
}

// contextHandler appends OTEL trace correlation ids when the context carries
// an active span.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		r.AddAttrs(
			slog.String("traceId", span.TraceID().String()),
			slog.String("spanId", span.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{h.Handler.WithGroup(name)}
}

// replaceAttr expands error values into message + stack trace groups so that
// file-based logs carry enough context to debug after the fact.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}

	err, ok := a.Value.Any().(error)
	if !ok {
		return a
	}

	attrs := []slog.Attr{slog.String("msg", err.Error())}
	trace := xerrors.StackTrace(err)
	if len(trace) > 0 {
		frames := trace.Frames()
		lines := make([]string, 0, len(frames))
		for _, f := range frames {
			lines = append(lines, fmt.Sprintf("%s %s:%d", f.Function, filepath.Base(f.File), f.Line))
		}
		attrs = append(attrs, slog.Any("trace", lines))
	}

	a.Value = slog.GroupValue(attrs...)
	return a
}

// prettyHandler renders colorized, human-readable records for dev runs.
type prettyHandler struct {
	opts  slog.HandlerOptions
	mu    *sync.Mutex
	out   io.Writer
	attrs []slog.Attr
}

func newPrettyHandler(out io.Writer, level slog.Level) *prettyHandler {
	return &prettyHandler{
		opts: slog.HandlerOptions{Level: level},
		mu:   &sync.Mutex{},
		out:  out,
	}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	fields := map[string]interface{}{}
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		if err, ok := a.Value.Any().(error); ok {
			fields[a.Key] = err.Error()
			return true
		}
		fields[a.Key] = a.Value.Any()
		return true
	})

	suffix := ""
	if len(fields) > 0 {
		b, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		suffix = " " + color.WhiteString(string(b))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.out, "%s %s %s%s\n",
		r.Time.Format("15:04:05.000"), level, color.CyanString(r.Message), suffix)
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &prettyHandler{
		opts:  h.opts,
		mu:    h.mu,
		out:   h.out,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *prettyHandler) WithGroup(_ string) slog.Handler {
	return h
}
