// Package sink defines where streamed history rows go.
//
// A Sink receives Batches in stream order: for every instrument one header
// batch carrying the ';'-joined column list, followed by data batches of raw
// ';'-separated rows. The set of sinks is closed; New builds one of the
// supported kinds from a Config.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var rowsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iss_sink_rows_written_total",
	Help: "Total history rows persisted by sink kind",
}, []string{"kind"})

var (
	// ErrUnknownKind is returned by New for an unsupported sink kind.
	ErrUnknownKind = errors.New("unknown sink kind")

	// ErrClosed is returned when a batch is sent to a closed sink.
	ErrClosed = errors.New("sink closed")
)

// Kind selects a sink implementation.
type Kind string

const (
	// KindFile appends rows to a CSV file.
	KindFile Kind = "file"

	// KindTable inserts rows into a database table.
	KindTable Kind = "table"

	// KindMemory keeps rows in memory per instrument.
	KindMemory Kind = "memory"

	// KindFunc hands batches to a caller supplied function.
	KindFunc Kind = "func"
)

// Batch is a unit of streamed data for one instrument.
type Batch struct {
	SecID string

	// Header marks a batch whose single row is the ';'-joined column list.
	Header bool

	Rows []string
}

// Sink consumes history batches.
type Sink interface {
	// Process handles one batch. Batches arrive in stream order.
	Process(ctx context.Context, b Batch) error

	// Close flushes and releases the sink's resources.
	Close() error

	// Kind reports the sink variant.
	Kind() Kind

	sealed()
}

// Config selects and configures a sink.
type Config struct {
	Kind Kind

	// Path is the output file of a file sink. When empty a unique name is
	// generated in Dir.
	Path string
	Dir  string

	// DB, Dialect and Table configure a table sink.
	DB      *sql.DB
	Dialect Dialect
	Table   string

	// Func receives batches for a func sink.
	Func func(ctx context.Context, b Batch) error

	Logger *zerolog.Logger
}

// New builds the sink selected by cfg.Kind.
func New(cfg Config) (Sink, error) {
	logger := logging.NewLogger("iss-sink")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	switch cfg.Kind {
	case KindFile:
		s, err := NewFileSink(NewFileContainer(cfg.Path, cfg.Dir), logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindTable:
		s, err := NewTableSink(cfg.DB, cfg.Dialect, cfg.Table, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindMemory:
		return NewMemorySink(), nil
	case KindFunc:
		if cfg.Func == nil {
			return nil, fmt.Errorf("func sink requires a function")
		}
		return NewFunc(cfg.Func), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
