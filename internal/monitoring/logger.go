package monitoring

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat represents log output format
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"   // machine-readable
	LogFormatPretty LogFormat = "pretty" // human-readable for local runs
)

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  LogLevel
	Format LogFormat
}

// NewLogger creates the process-wide structured logger.
func NewLogger(config LoggerConfig) zerolog.Logger {
	var output io.Writer = os.Stdout

	var level zerolog.Level
	switch config.Level {
	case LogLevelDebug:
		level = zerolog.DebugLevel
	case LogLevelInfo:
		level = zerolog.InfoLevel
	case LogLevelWarn:
		level = zerolog.WarnLevel
	case LogLevelError:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.Format == LogFormatPretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "bftsim").
		Logger()
}

// DebugSinks holds the per-component debug loggers. When debugging is
// disabled both loggers are no-ops and Close does nothing.
//
// The node sink receives every reception a node processes and every message
// it drops; the simulation sink receives queue activity. They go to separate
// files so a node-level trace is readable without the scheduler noise.
type DebugSinks struct {
	Nodes      zerolog.Logger
	Simulation zerolog.Logger

	files []*os.File
}

// NewDebugSinks opens debug_nodes.log and debug_simulation.log in dir when
// enabled. Files are truncated per run.
func NewDebugSinks(dir string, enabled bool) (*DebugSinks, error) {
	if !enabled {
		return &DebugSinks{
			Nodes:      zerolog.Nop(),
			Simulation: zerolog.Nop(),
		}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	open := func(name string) (*os.File, error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("open debug sink %s: %w", name, err)
		}
		return f, nil
	}

	nodes, err := open("debug_nodes.log")
	if err != nil {
		return nil, err
	}
	simulation, err := open("debug_simulation.log")
	if err != nil {
		nodes.Close()
		return nil, err
	}

	sinks := &DebugSinks{
		Nodes:      zerolog.New(nodes).With().Timestamp().Str("component", "node").Logger(),
		Simulation: zerolog.New(simulation).With().Timestamp().Str("component", "simulation").Logger(),
		files:      []*os.File{nodes, simulation},
	}
	return sinks, nil
}

// Close flushes and closes the underlying files.
func (d *DebugSinks) Close() error {
	var firstErr error
	for _, f := range d.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.files = nil
	return firstErr
}
