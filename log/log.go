package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

var (
	log zerolog.Logger

	// panicOnInvalidChars is set based on env LOG_PANIC_ON_INVALIDCHARS.
	// A log line with invalid characters suggests binary data was printed
	// unformatted, so in debug builds we want to fail loudly.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"

	// logTestWriter is used by tests and benchmarks instead of a real output.
	logTestWriter io.Writer = io.Discard
)

const logTestWriterName = "logTest"

// Logger returns the default logger.
func Logger() *zerolog.Logger { return &log }

func output(o string) io.Writer {
	switch o {
	case "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case logTestWriterName:
		return logTestWriter
	default:
		f, err := os.OpenFile(o, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		return f
	}
}

// Init initializes the logger. Output can be either "stdout", "stderr",
// or a file path. If errorOutput is not nil, errors and fatal messages are
// duplicated to it.
func Init(level, out string, errorOutput io.Writer) {
	w := output(out)
	if out == "stdout" || out == "stderr" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339Nano}
	}
	if errorOutput != nil {
		w = zerolog.MultiLevelWriter(w, errorLevelWriter{errorOutput})
	}
	log = zerolog.New(w).With().Timestamp().Logger()
	switch strings.ToLower(level) {
	case "debug":
		log = log.Level(zerolog.DebugLevel)
	case "info":
		log = log.Level(zerolog.InfoLevel)
	case "warn":
		log = log.Level(zerolog.WarnLevel)
	case "error":
		log = log.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", level))
	}
}

// errorLevelWriter forwards only error-or-worse lines to its writer.
type errorLevelWriter struct{ w io.Writer }

func (w errorLevelWriter) Write(p []byte) (int, error) { return len(p), nil }

func (w errorLevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.ErrorLevel {
		return len(p), nil
	}
	return w.w.Write(p)
}

func checkInvalidChars(s string) {
	if panicOnInvalidChars && !utf8.ValidString(s) {
		panic(fmt.Sprintf("log line with invalid chars: %q", s))
	}
}

func send(ev *zerolog.Event, msg string) {
	checkInvalidChars(msg)
	ev.Msg(msg)
}

func sendf(ev *zerolog.Event, format string, args ...any) {
	send(ev, fmt.Sprintf(format, args...))
}

func sendw(ev *zerolog.Event, msg string, keyvalues ...any) {
	if len(keyvalues)%2 != 0 {
		panic("log keyvalues should be pairs")
	}
	for i := 0; i+1 < len(keyvalues); i += 2 {
		key, ok := keyvalues[i].(string)
		if !ok {
			panic("log keys should be strings")
		}
		ev = ev.Interface(key, keyvalues[i+1])
	}
	send(ev, msg)
}

// Debug sends a debug level log message.
func Debug(args ...any) { send(log.Debug(), fmt.Sprint(args...)) }

// Info sends an info level log message.
func Info(args ...any) { send(log.Info(), fmt.Sprint(args...)) }

// Warn sends a warn level log message.
func Warn(args ...any) { send(log.Warn(), fmt.Sprint(args...)) }

// Error sends an error level log message.
func Error(args ...any) { send(log.Error(), fmt.Sprint(args...)) }

// Fatal sends a fatal level log message and exits.
func Fatal(args ...any) { send(log.Fatal(), fmt.Sprint(args...)) }

// Debugf sends a formatted debug level log message.
func Debugf(format string, args ...any) { sendf(log.Debug(), format, args...) }

// Infof sends a formatted info level log message.
func Infof(format string, args ...any) { sendf(log.Info(), format, args...) }

// Warnf sends a formatted warn level log message.
func Warnf(format string, args ...any) { sendf(log.Warn(), format, args...) }

// Errorf sends a formatted error level log message.
func Errorf(format string, args ...any) { sendf(log.Error(), format, args...) }

// Fatalf sends a formatted fatal level log message and exits.
func Fatalf(format string, args ...any) { sendf(log.Fatal(), format, args...) }

// Debugw sends a debug level log message with key-value pairs.
func Debugw(msg string, keyvalues ...any) { sendw(log.Debug(), msg, keyvalues...) }

// Infow sends an info level log message with key-value pairs.
func Infow(msg string, keyvalues ...any) { sendw(log.Info(), msg, keyvalues...) }

// Warnw sends a warn level log message with key-value pairs.
func Warnw(msg string, keyvalues ...any) { sendw(log.Warn(), msg, keyvalues...) }

// Errorw sends an error level log message with key-value pairs.
func Errorw(msg string, keyvalues ...any) { sendw(log.Error(), msg, keyvalues...) }
