package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var stderr = struct{ io.Writer }{os.Stderr}

func init() { //nolint:gochecknoinits // init with zerolog is idiomatic
	configureLogging()
}

type tTesting interface {
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Helper()
	Cleanup(f func())
}

// ConfigureTestLogging allows logs to be associated with individual tests
func ConfigureTestLogging(t tTesting) {
	oldLogger := log.Logger
	oldContextLogger := zerolog.DefaultContextLogger
	configureLogging(zerolog.ConsoleTestWriter(t))
	t.Cleanup(func() {
		log.Logger = oldLogger
		zerolog.DefaultContextLogger = oldContextLogger
	})
}

func configureLogging(loggingOptions ...func(w *zerolog.ConsoleWriter)) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level := zerolog.InfoLevel
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	logType := strings.ToLower(os.Getenv("LOG_TYPE"))
	if logType == "json" || (!isatty.IsTerminal(os.Stderr.Fd()) && logType != "console") {
		log.Logger = zerolog.New(stderr).With().Timestamp().Caller().Logger()
		zerolog.DefaultContextLogger = &log.Logger
		return
	}

	defaultOptions := []func(w *zerolog.ConsoleWriter){
		func(w *zerolog.ConsoleWriter) {
			w.Out = stderr
			w.TimeFormat = "15:04:05.999"
		},
		func(w *zerolog.ConsoleWriter) {
			w.FormatErrFieldValue = func(i interface{}) string {
				// apply zerolog's default formatting but strip newlines that
				// would break the console layout
				return strings.ReplaceAll(fmt.Sprintf("%s", i), "\n", " ")
			}
		},
	}
	loggingOptions = append(defaultOptions, loggingOptions...)

	log.Logger = zerolog.New(zerolog.NewConsoleWriter(loggingOptions...)).
		With().Timestamp().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// LogMode overrides the log level at runtime, e.g. from a --log-level flag.
func LogMode(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
