package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex          sync.RWMutex
	current        Config
	initialized    bool
	globalLevelVar = &slog.LevelVar{}
	loggers        = make(map[string]*slog.Logger)
	levelVars      = make(map[string]*slog.LevelVar)
)

// Initialize installs the handler chain and applies the configured levels.
// Loggers handed out earlier keep working and pick up the new levels.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	current = config
	initialized = true
	applyLevelsLocked()

	for module, levelVar := range levelVars {
		loggers[module] = slog.New(createHandler(config.Format, levelVar)).With("module", module)
	}
	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// SetLevels changes the global and per-module levels without rebuilding
// handlers. Used by the config watcher on reload.
func SetLevels(level string, modules map[string]string) {
	mutex.Lock()
	defer mutex.Unlock()

	current.Level = level
	current.Modules = modules
	applyLevelsLocked()
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, ok := loggers[module]
	mutex.RUnlock()
	if ok {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if logger, ok := loggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(moduleLevelLocked(module))
	format := "text"
	if initialized {
		format = current.Format
	}

	logger = slog.New(createHandler(format, levelVar)).With("module", module)
	loggers[module] = logger
	levelVars[module] = levelVar
	return logger
}

func applyLevelsLocked() {
	globalLevelVar.Set(levelOr(current.Level, slog.LevelInfo))
	for module, levelVar := range levelVars {
		levelVar.Set(moduleLevelLocked(module))
	}
}

func moduleLevelLocked(module string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	level := levelOr(current.Level, slog.LevelInfo)
	if override, ok := current.Modules[module]; ok {
		level = levelOr(override, level)
	}
	return level
}

// createHandler writes to stdout and, when present, the systemd journal.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	switch len(handlers) {
	case 0:
		return stdoutHandler
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// isStdoutAvailable is false when stdout is /dev/null or closed.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if parsed, ok := parseLevel(level); ok {
		return parsed
	}
	return fallback
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
