// Package logging provides the configured zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	Level  string
	Format string
	// Writer defaults to stderr so log lines never mix with command output.
	Writer io.Writer
}

var installMarshalers sync.Once

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

// New returns a logger tagged with service. Call sites use .Stack() on
// error events to include stacks.
func New(service string, o Options) (zerolog.Logger, error) {
	installMarshalers.Do(func() {
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			if _, ok := err.(stackTracer); !ok {
				err = pkgerrors.WithStack(err)
			}
			return zpkgerrors.MarshalStack(err)
		}
	})

	level := zerolog.InfoLevel
	if o.Level != "" {
		var err error
		if level, err = zerolog.ParseLevel(strings.ToLower(o.Level)); err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: %w", err)
		}
	}

	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	switch o.Format {
	case "", FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("logging: unknown format %q", o.Format)
	}

	return zerolog.New(w).Level(level).With().
		Str("service", service).
		Timestamp().
		Logger(), nil
}

// Component derives a logger for one part of the program.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
