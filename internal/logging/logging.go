package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/config"
)

// New builds the process logger. Dev gets a console writer, everything else
// JSON. When LOG_FILE is set the output is also written to a rotated file.
func New(cfg config.Config, component string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	if cfg.LogFile != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	return zerolog.New(out).
		Level(ParseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("component", component).
		Str("env", cfg.Env).
		Logger()
}

// Bootstrap is the stderr logger used before the configuration is loaded.
func Bootstrap(component string) zerolog.Logger {
	return bootstrap(os.Stderr, component)
}

func bootstrap(w io.Writer, component string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// ParseLevel falls back to info for unknown names.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
