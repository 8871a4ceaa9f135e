package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the process-wide slog default from the logging section
// of the gateway configuration. The gateway normally runs behind a log
// collector, so JSON is the default output; format "text" switches to the
// human-readable handler for local work. Level accepts debug, info, warn, and
// error (case-insensitive) and falls back to info. At debug level the handler
// also records source locations.
//
// Installing the logger as the slog default means no *slog.Logger has to be
// threaded through constructors or contexts.
func SetupLogger(format, level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger ready", "format", format, "level", lvl.String())
}
