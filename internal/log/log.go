// Package log provides structured, category-tagged logging for algomgr.
// Logging is off until one of the Init functions installs a sink. Every
// entry written is also published on a broker so the monitor can tail it.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/algomgr/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a config string onto a Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatRegistry  Category = "registry"  // Generic keyed factory registrations
	CatCatalog   Category = "catalog"   // Algorithm catalog subscriptions and lookups
	CatManager   Category = "manager"   // Instance creation, retention and eviction
	CatProxy     Category = "proxy"     // Proxy materialization and replay
	CatAlgorithm Category = "algorithm" // Algorithm execution lifecycle
	CatHub       Category = "hub"       // Starting notification fan-out
	CatConfig    Category = "config"    // Configuration loading/saving
	CatJournal   Category = "journal"   // Run history persistence
	CatTrace     Category = "trace"     // Tracing provider setup
	CatAPI       Category = "api"       // HTTP control surface
	CatMonitor   Category = "monitor"   // Terminal monitor
	CatWatcher   Category = "watcher"   // Config file watcher events
	CatCache     Category = "cache"     // cache operations
)

// EntryEvent is the event type of every published Entry.
const EntryEvent pubsub.EventType = "log"

// Entry is one log record.
type Entry struct {
	Time     time.Time
	Level    Level
	Category Category
	Message  string
	Fields   []any
}

// String formats e as a single line without the trailing newline:
//
//	2026-03-01T12:00:00 [WARN] [manager] message key=value
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " [%s] [%s] %s", e.Level, e.Category, e.Message)
	for i := 0; i+1 < len(e.Fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.Fields[i], e.Fields[i+1])
	}
	if len(e.Fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", e.Fields[len(e.Fields)-1])
	}
	return b.String()
}

// Logger writes entries at or above its level to one sink.
type Logger struct {
	mu       sync.Mutex
	sink     io.Writer
	closer   io.Closer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[Entry]
}

var (
	stateMu       sync.RWMutex
	defaultLogger *Logger
)

// install replaces the global logger and returns its cleanup.
func install(sink io.Writer, closer io.Closer, level Level) func() {
	l := &Logger{
		sink:     sink,
		closer:   closer,
		enabled:  true,
		minLevel: level,
		broker:   pubsub.NewBroker[Entry](),
	}
	stateMu.Lock()
	prev := defaultLogger
	defaultLogger = l
	stateMu.Unlock()
	if prev != nil {
		prev.broker.Close()
	}

	return func() {
		stateMu.Lock()
		if defaultLogger == l {
			defaultLogger = nil
		}
		stateMu.Unlock()
		l.broker.Close()
		if l.closer != nil {
			_ = l.closer.Close()
		}
	}
}

func current() *Logger {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return defaultLogger
}

// Init appends debug-level entries to the file at path.
func Init(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path is user-controlled debug log path
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return install(f, f, LevelDebug), nil
}

// InitWithTeaLog opens path through tea.LogToFile. The monitor uses this
// because bubbletea owns the terminal while it runs.
func InitWithTeaLog(path string, prefix string) (func(), error) {
	f, err := tea.LogToFile(path, prefix)
	if err != nil {
		return nil, err
	}
	return install(f, f, LevelDebug), nil
}

// InitWriter sends entries at or above level to w. `serve` uses it to log to
// stderr.
func InitWriter(w io.Writer, level Level) func() {
	return install(w, nil, level)
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) { write(LevelDebug, cat, msg, fields) }

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) { write(LevelInfo, cat, msg, fields) }

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) { write(LevelWarn, cat, msg, fields) }

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) { write(LevelError, cat, msg, fields) }

// ErrorErr logs at error level with err appended as the "error" field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	text := "<nil>"
	if err != nil {
		text = err.Error()
	}
	write(LevelError, cat, msg, append(fields, "error", text))
}

func write(level Level, cat Category, msg string, fields []any) {
	l := current()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || level < l.minLevel {
		return
	}

	e := Entry{Time: time.Now(), Level: level, Category: cat, Message: msg, Fields: fields}
	if l.sink != nil {
		_, _ = io.WriteString(l.sink, e.String()+"\n")
	}
	l.broker.Publish(EntryEvent, e)
}

// Listener delivers log entries to a Bubble Tea model.
type Listener = pubsub.Listener[Entry]

// NewListener subscribes to the current logger until ctx is done. It
// returns nil when logging is off.
func NewListener(ctx context.Context) *Listener {
	l := current()
	if l == nil {
		return nil
	}
	return pubsub.Listen(ctx, l.broker.Subscribe(ctx))
}
