package log_helper

import (
	"io"
	stdlog "log"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// SetupLogger configures the global zerolog logger with console output.
// The standard library logger is redirected so that output from child
// process plumbing ends up in the same stream.
func SetupLogger(out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	consoleWriter := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: "2006-01-02 15:04:05.000"}
	logger := zerolog.New(zerolog.SyncWriter(consoleWriter)).With().Timestamp().Logger()
	log.Logger = logger
	stdlog.SetOutput(logger)
	return logger
}
