package log

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Named loggers for the bot's subsystems. Setup must run before any of
// the accessors; until then they fall back to slog's default logger.
var (
	mu          sync.RWMutex
	application *slog.Logger
	discord     *slog.Logger
	storage     *slog.Logger
	fileSink    *lumberjack.Logger
)

// Setup initializes the subsystem loggers. Console output goes through
// tint; a rotating JSON log file is kept under logDir.
func Setup(logDir string) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	sink := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "guildsetup.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	console := tint.NewHandler(os.Stderr, &tint.Options{
		Level:   slog.LevelDebug,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	})
	file := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: slog.LevelDebug})
	root := slog.New(newTeeHandler(console, file))

	mu.Lock()
	defer mu.Unlock()
	if fileSink != nil {
		_ = fileSink.Close()
	}
	fileSink = sink
	application = root.With("subsystem", "application")
	discord = root.With("subsystem", "discord")
	storage = root.With("subsystem", "storage")
	return nil
}

// Close flushes and closes the rotating file sink.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	return err
}

// Application returns the logger for startup, shutdown and wiring events.
func Application() *slog.Logger { return get(&application) }

// Discord returns the logger for gateway and API interactions.
func Discord() *slog.Logger { return get(&discord) }

// Storage returns the logger for registry and audit persistence.
func Storage() *slog.Logger { return get(&storage) }

func get(l **slog.Logger) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if *l == nil {
		return slog.Default()
	}
	return *l
}

// teeHandler fans a record out to every wrapped handler.
type teeHandler struct {
	handlers []slog.Handler
}

func newTeeHandler(handlers ...slog.Handler) *teeHandler {
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: next}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: next}
}
