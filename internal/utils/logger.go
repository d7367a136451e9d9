package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu  sync.RWMutex
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// InitLogger configures the global logger to write JSON lines to stdout and,
// when file is set, to a size-rotated log file.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	var out io.Writer = os.Stdout
	if file != "" {
		if err := EnsureLogDir(file); err != nil {
			fmt.Fprintf(os.Stderr, "log dir: %v\n", err)
		} else {
			out = zerolog.MultiLevelWriter(os.Stdout, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    maxSizeMB,
				MaxBackups: maxBackups,
				MaxAge:     maxAgeDays,
				Compress:   compress,
			})
		}
	}

	logMu.Lock()
	logger = zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
	logMu.Unlock()
}

// EnsureLogDir creates the parent directory of a log file path.
func EnsureLogDir(file string) error {
	dir := filepath.Dir(file)
	if file == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// SetLogLevel changes the minimum level. Unknown levels fall back to info.
func SetLogLevel(level string) {
	logMu.Lock()
	logger = logger.Level(parseLevel(level))
	logMu.Unlock()
}

// SetLoggerForTest swaps the global logger.
func SetLoggerForTest(l zerolog.Logger) {
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func current() *zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	l := logger
	return &l
}

// Debug logs msg with alternating key/value pairs.
func Debug(msg string, kv ...interface{}) { withFields(current().Debug(), kv).Msg(msg) }

// Info logs msg with alternating key/value pairs.
func Info(msg string, kv ...interface{}) { withFields(current().Info(), kv).Msg(msg) }

// Warn logs msg with alternating key/value pairs.
func Warn(msg string, kv ...interface{}) { withFields(current().Warn(), kv).Msg(msg) }

// Error logs msg with alternating key/value pairs.
func Error(msg string, kv ...interface{}) { withFields(current().Error(), kv).Msg(msg) }

// withFields attaches pairs to the event; a trailing key without value is dropped.
func withFields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	if e == nil {
		return e
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
