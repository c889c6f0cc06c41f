// Package logging provides config-driven categorized logging for the miner.
// Every category is a named child of one process-wide zap logger, so log
// lines carry "logger":"<category>" and share a single level switch.
// Categories can be muted individually from the config file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Boot/initialization
	CategoryAPI     Category = "api"     // LLM API calls
	CategoryReview  Category = "review"  // Prompt building, review decoding
	CategoryMiner   Category = "miner"   // Forward pass, retries, fallbacks
	CategoryChecker Category = "checker" // CheckerChain product API
	CategoryCache   Category = "cache"   // Prediction cache
	CategoryStore   Category = "store"   // SQLite prediction history
	CategoryServer  Category = "server"  // HTTP ingress
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string
	Format     string // json, console
	File       string // empty writes to stderr
	Categories map[string]bool
}

var (
	mu       sync.RWMutex
	base     = zap.NewNop()
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	muted    = map[Category]bool{}
	loggers  = map[Category]*zap.SugaredLogger{}
	closeOut func()
)

// Initialize builds the process logger from cfg and returns it so cmd code
// can use the same core for its own structured fields.
func Initialize(cfg Config) (*zap.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	sink := zapcore.AddSync(os.Stderr)
	var closer func()
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.AddSync(f)
		closer = func() { _ = f.Close() }
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch cfg.Format {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		if closer != nil {
			closer()
		}
		return nil, fmt.Errorf("unknown log format: %s (valid: json, console)", cfg.Format)
	}

	level.SetLevel(lvl)
	logger := zap.New(zapcore.NewCore(enc, sink, level), zap.AddCaller())

	m := make(map[Category]bool)
	for name, enabled := range cfg.Categories {
		if !enabled {
			m[Category(name)] = true
		}
	}

	mu.Lock()
	prevClose := closeOut
	base = logger
	muted = m
	loggers = make(map[Category]*zap.SugaredLogger)
	closeOut = closer
	mu.Unlock()

	if prevClose != nil {
		prevClose()
	}
	return logger, nil
}

// SetLogger replaces the process logger, e.g. with zaptest in tests.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	loggers = make(map[Category]*zap.SugaredLogger)
}

// ParseLevel maps a config level string onto a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
}

// SetLevel changes the level of every category at runtime.
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level returns the current level.
func Level() zapcore.Level {
	return level.Level()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return !muted[category]
}

// Get returns (or creates) a logger for the given category.
// Muted categories get a no-op logger.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	l, ok := loggers[category]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	if muted[category] {
		l = zap.NewNop().Sugar()
	} else {
		l = base.Named(string(category)).WithOptions(zap.AddCallerSkip(1)).Sugar()
	}
	loggers[category] = l
	return l
}

// Sync flushes buffered entries and closes the log file if one is open.
func Sync() {
	mu.Lock()
	l := base
	c := closeOut
	closeOut = nil
	mu.Unlock()
	_ = l.Sync()
	if c != nil {
		c()
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Infof(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debugf(format, args...) }

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warnf(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Infof(format, args...) }

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debugf(format, args...) }

// APIWarn logs a warning to the api category
func APIWarn(format string, args ...interface{}) { Get(CategoryAPI).Warnf(format, args...) }

// APIError logs an error to the api category
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Errorf(format, args...) }

// Review logs to the review category
func Review(format string, args ...interface{}) { Get(CategoryReview).Infof(format, args...) }

// ReviewDebug logs debug to the review category
func ReviewDebug(format string, args ...interface{}) { Get(CategoryReview).Debugf(format, args...) }

// ReviewWarn logs a warning to the review category
func ReviewWarn(format string, args ...interface{}) { Get(CategoryReview).Warnf(format, args...) }

// Checker logs to the checker category
func Checker(format string, args ...interface{}) { Get(CategoryChecker).Infof(format, args...) }

// CheckerDebug logs debug to the checker category
func CheckerDebug(format string, args ...interface{}) { Get(CategoryChecker).Debugf(format, args...) }

// CheckerWarn logs a warning to the checker category
func CheckerWarn(format string, args ...interface{}) { Get(CategoryChecker).Warnf(format, args...) }

// Cache logs to the cache category
func Cache(format string, args ...interface{}) { Get(CategoryCache).Infof(format, args...) }

// CacheDebug logs debug to the cache category
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debugf(format, args...) }

// CacheWarn logs a warning to the cache category
func CacheWarn(format string, args ...interface{}) { Get(CategoryCache).Warnf(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Infof(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debugf(format, args...) }

// StoreError logs an error to the store category
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Errorf(format, args...) }

// Miner logs to the miner category
func Miner(format string, args ...interface{}) { Get(CategoryMiner).Infof(format, args...) }

// MinerDebug logs debug to the miner category
func MinerDebug(format string, args ...interface{}) { Get(CategoryMiner).Debugf(format, args...) }

// MinerWarn logs a warning to the miner category
func MinerWarn(format string, args ...interface{}) { Get(CategoryMiner).Warnf(format, args...) }

// MinerError logs an error to the miner category
func MinerError(format string, args ...interface{}) { Get(CategoryMiner).Errorf(format, args...) }

// Server logs to the server category
func Server(format string, args ...interface{}) { Get(CategoryServer).Infof(format, args...) }

// ServerWarn logs a warning to the server category
func ServerWarn(format string, args ...interface{}) { Get(CategoryServer).Warnf(format, args...) }

// Timer tracks an operation's duration.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer starts timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.operation, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the operation took longer than threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s slow: %v (threshold %v)", t.operation, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.operation, elapsed)
	}
	return elapsed
}
