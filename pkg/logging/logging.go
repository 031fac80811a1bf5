package logging

import (
	"fmt"
	"io"
	stdLog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu sync.Mutex
	// logWriter stores the current log writer globally
	logWriter io.Writer
)

// stdLogWriter reformats stdlog output into zerolog debug events.
type stdLogWriter struct {
	logger zerolog.Logger
}

func (w *stdLogWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSuffix(string(p), "\n")

	// Example stdlog output: "2025/05/23 14:40:15 exec.go:35: started nmap"
	parts := strings.SplitN(message, " ", 4)
	if len(parts) >= 4 {
		stdTime, err := time.Parse("2006/01/02 15:04:05", parts[0]+" "+parts[1])
		if err == nil {
			fileLine := strings.TrimSuffix(parts[2], ":")
			w.logger.Debug().
				Str("file", fileLine).
				Time("time", stdTime).
				Msg(parts[3])
			return len(p), nil
		}
	}

	w.logger.Debug().Msg(message)
	return len(p), nil
}

// init sets the global logging level for zerolog to ErrorLevel by default.
// Logs go to stderr so stdout stays free for command output.
func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	logWriter = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// ConfigureGlobalLogging configures the global logger from a level name.
// An unknown name leaves the logger untouched and returns the parse error.
func ConfigureGlobalLogging(levelStr string) error {
	level, err := parseLogLevel(levelStr)
	if err != nil {
		return err
	}
	ConfigureGlobal(level)
	return nil
}

// ConfigureGlobal configures the global logger at level.
func ConfigureGlobal(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.SetGlobalLevel(level)

	logContext := zerolog.New(logWriter).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}

	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	stdLog.SetFlags(0)
	stdLog.SetOutput(&stdLogWriter{logger: log.Logger})
}

// SetFormat switches the global writer between "text" (console) and "json".
// Call it before ConfigureGlobal.
func SetFormat(format string) {
	switch strings.ToLower(format) {
	case "json":
		SetLogWriter(os.Stderr)
	default:
		SetLogWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// SetLogWriter sets the global log writer.
func SetLogWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logWriter = w
}

// Component returns a sub-logger of the global logger tagged with component.
func Component(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// VerbosityLevel maps a -v count to a level: 0 keeps fallback, 1 is info,
// 2 is debug, 3 or more is trace.
func VerbosityLevel(count int, fallback string) string {
	switch {
	case count >= 3:
		return "trace"
	case count == 2:
		return "debug"
	case count == 1:
		return "info"
	default:
		return fallback
	}
}

func parseLogLevel(levelString string) (zerolog.Level, error) {
	if levelString == "" {
		return zerolog.ErrorLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(levelString))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q (want trace, debug, info, warn, error, fatal, panic or disabled)", levelString)
	}
	return level, nil
}
