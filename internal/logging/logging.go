package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global zerolog level and output.
// Call this early in main, before any component logs.
func Configure(level, format string, writer io.Writer) error {
	if writer == nil {
		writer = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	switch strings.ToLower(format) {
	case "", "console":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC822}).With().Timestamp().Logger()
	case "json":
		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format '%s', expected console or json", format)
	}

	// Components log through zerolog.Ctx, fall back to the global logger outside a request.
	zerolog.DefaultContextLogger = &log.Logger

	return nil
}
