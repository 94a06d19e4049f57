package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

const (
	// DefaultRecentLogs is the number of entries RecentLogs returns when
	// count is not positive.
	DefaultRecentLogs = 100
	// MaxRecentLogs caps a single RecentLogs call.
	MaxRecentLogs = 1000
)

// Logger wraps zerolog.Logger with EvorBrain-specific functionality.
// Children created with With* share the parent's level and log file.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
	gate   *levelGate
	file   *dailyFile
}

// LogEntry is one parsed line of the daily log file.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// loggerContextKey is the context key for logger instances.
type loggerContextKey struct{}

// levelGate drops events below a level that can change at runtime.
type levelGate struct {
	out   zerolog.LevelWriter
	level atomic.Int32
}

func (g *levelGate) Write(p []byte) (int, error) {
	return g.out.Write(p)
}

func (g *levelGate) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.Level(g.level.Load()) {
		return len(p), nil
	}
	return g.out.WriteLevel(l, p)
}

// dailyFile appends to <dir>/evorbrain_YYYY-MM-DD.log, switching files at
// local midnight.
type dailyFile struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

func (d *dailyFile) path(day string) string {
	return filepath.Join(d.dir, "evorbrain_"+day+".log")
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().Format("2006-01-02")
	if d.f == nil || day != d.day {
		if d.f != nil {
			_ = d.f.Close()
			d.f = nil
		}
		f, err := os.OpenFile(d.path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return 0, err
		}
		d.f = f
		d.day = day
	}
	return d.f.Write(p)
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	var console io.Writer
	switch cfg.Output {
	case "stdout":
		console = os.Stdout
	case "stderr", "":
		console = os.Stderr
	}
	if console != nil {
		if cfg.Format == "console" {
			console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
		}
		writers = append(writers, console)
	}

	var file *dailyFile
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file = &dailyFile{dir: cfg.Dir, now: time.Now}
		writers = append(writers, file)
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	gate := &levelGate{out: zerolog.MultiLevelWriter(writers...)}
	gate.level.Store(int32(level))

	if level < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(level)
	}

	zlog := zerolog.New(gate).Level(zerolog.TraceLevel).With().Timestamp().Logger()

	if cfg.EnableCaller {
		zlog = zlog.With().Caller().Logger()
	}

	if cfg.EnableSampling {
		zlog = zlog.Sample(&zerolog.BurstSampler{
			Burst:       uint32(cfg.SamplingInitial),
			Period:      1 * time.Second,
			NextSampler: &zerolog.BasicSampler{N: uint32(cfg.SamplingThereafter)},
		})
	}

	return &Logger{
		zlog:   zlog,
		config: cfg,
		gate:   gate,
		file:   file,
	}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	gate := &levelGate{out: zerolog.MultiLevelWriter(io.Discard)}
	gate.level.Store(int32(zerolog.Disabled))
	return &Logger{
		zlog: zerolog.New(nil).Level(zerolog.Disabled),
		gate: gate,
	}
}

// ParseLevel converts a level name into a zerolog level. Unknown names are
// validation errors.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, domain.NewValidationError(fmt.Sprintf("invalid log level: %s", level)).
		WithDetail("field", "level")
}

// Zerolog exposes the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Level returns the active minimum level.
func (l *Logger) Level() string {
	return zerolog.Level(l.gate.level.Load()).String()
}

// SetLevel changes the minimum level of this logger and every logger
// derived from the same root.
func (l *Logger) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if lvl < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(lvl)
	}
	l.gate.level.Store(int32(lvl))
	return nil
}

// LogFile returns today's log file path, or "" when file logging is off.
func (l *Logger) LogFile() string {
	if l.file == nil {
		return ""
	}
	return l.file.path(l.file.now().Format("2006-01-02"))
}

// RecentLogs returns the last count entries of today's log file, oldest
// first. A non-empty levelFilter keeps entries at or above that severity.
func (l *Logger) RecentLogs(count int, levelFilter string) ([]LogEntry, error) {
	if count <= 0 {
		count = DefaultRecentLogs
	}
	if count > MaxRecentLogs {
		count = MaxRecentLogs
	}

	minLevel := zerolog.TraceLevel
	if levelFilter != "" {
		lvl, err := ParseLevel(levelFilter)
		if err != nil {
			return nil, err
		}
		minLevel = lvl
	}

	entries := []LogEntry{}
	path := l.LogFile()
	if path == "" {
		return entries, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry, lvl, ok := parseLogLine(scanner.Bytes())
		if !ok || lvl < minLevel {
			continue
		}
		entries = append(entries, entry)
		if len(entries) > count {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	return entries, nil
}

func parseLogLine(line []byte) (LogEntry, zerolog.Level, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return LogEntry{}, zerolog.NoLevel, false
	}

	entry := LogEntry{}
	take := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}
	entry.Timestamp = take(zerolog.TimestampFieldName)
	entry.Level = take(zerolog.LevelFieldName)
	entry.Message = take(zerolog.MessageFieldName)
	entry.Component = take("component")
	if len(raw) > 0 {
		entry.Fields = raw
	}

	lvl, err := zerolog.ParseLevel(entry.Level)
	if err != nil {
		return LogEntry{}, zerolog.NoLevel, false
	}
	return entry, lvl, true
}

// Close releases the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) derive(zlog zerolog.Logger) *Logger {
	return &Logger{zlog: zlog, config: l.config, gate: l.gate, file: l.file}
}

// NewComponentLogger creates a child logger for a specific component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.derive(l.zlog.With().Str("component", component).Logger())
}

// WithContext adds the logger to the context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the logger from the context.
// If no logger is found, it returns a logger that discards everything.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return NewNopLogger()
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return l.derive(ctx.Logger())
}

// WithField returns a logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.zlog.With().Interface(key, value).Logger())
}

// WithEntity tags the logger with an entity type and ID.
func (l *Logger) WithEntity(entity domain.EntityType, id string) *Logger {
	zctx := l.zlog.With().Str("entity_type", string(entity))
	if id != "" {
		zctx = zctx.Str("entity_id", id)
	}
	return l.derive(zctx.Logger())
}

// WithError adds error information to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.zlog.With().Err(err).Logger())
}

// Trace logs a trace-level message.
func (l *Logger) Trace(msg string) {
	l.zlog.Trace().Msg(msg)
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

// Debugf logs a formatted debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

// Infof logs a formatted info-level message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) {
	l.zlog.Warn().Msg(msg)
}

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(msg string) {
	l.zlog.Error().Msg(msg)
}

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}
