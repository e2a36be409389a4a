package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Dialect selects SQL placeholder syntax.
type Dialect string

const (
	// DialectPostgres uses $n placeholders (lib/pq).
	DialectPostgres Dialect = "postgres"

	// DialectSQLite uses ? placeholders (modernc.org/sqlite).
	DialectSQLite Dialect = "sqlite"
)

var (
	// ErrNoHeader is returned when rows arrive before any header batch.
	ErrNoHeader = errors.New("rows received before header")

	// ErrColumnMismatch is returned when a row's field count differs from the header.
	ErrColumnMismatch = errors.New("row does not match header columns")

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// TableSink inserts rows into a table whose TEXT columns are created from the
// first header batch. Each data batch is written in one transaction.
type TableSink struct {
	db      *sql.DB
	dialect Dialect
	table   string
	logger  zerolog.Logger

	mu      sync.Mutex
	columns []string
	insert  string
	rows    int
}

// NewTableSink creates a table sink. The database handle stays owned by the
// caller.
func NewTableSink(db *sql.DB, dialect Dialect, table string, logger zerolog.Logger) (*TableSink, error) {
	if db == nil {
		return nil, fmt.Errorf("table sink requires a database handle")
	}
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	return &TableSink{
		db:      db,
		dialect: dialect,
		table:   table,
		logger:  logger.With().Str("table", table).Logger(),
	}, nil
}

// Columns returns the columns the table was created with.
func (s *TableSink) Columns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.columns...)
}

// Process implements Sink.
func (s *TableSink) Process(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Header {
		if len(b.Rows) == 0 {
			return nil
		}
		return s.ensureTable(ctx, splitRow(b.Rows[0]))
	}

	if s.columns == nil {
		return ErrNoHeader
	}
	if len(b.Rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(s.columns))
	for i, row := range b.Rows {
		fields := splitRow(row)
		if len(fields) != len(s.columns) {
			return fmt.Errorf("%w: %s row %d has %d fields, want %d",
				ErrColumnMismatch, b.SecID, i, len(fields), len(s.columns))
		}
		for j, f := range fields {
			if f == "" {
				args[j] = nil
			} else {
				args[j] = f
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", b.SecID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.rows += len(b.Rows)
	rowsWrittenTotal.WithLabelValues(string(KindTable)).Add(float64(len(b.Rows)))
	return nil
}

func (s *TableSink) ensureTable(ctx context.Context, columns []string) error {
	if s.columns != nil {
		if !equalColumns(s.columns, columns) {
			return fmt.Errorf("%w: header %v differs from table columns %v",
				ErrColumnMismatch, columns, s.columns)
		}
		return nil
	}

	quoted := make([]string, len(columns))
	defs := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, col := range columns {
		if !identRe.MatchString(col) {
			return fmt.Errorf("invalid column name %q", col)
		}
		quoted[i] = quoteIdent(col)
		defs[i] = quoted[i] + " TEXT"
		marks[i] = s.placeholder(i + 1)
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(s.table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}

	s.columns = columns
	s.insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(s.table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	s.logger.Info().Int("columns", len(columns)).Msg("History table ready")
	return nil
}

func (s *TableSink) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Close implements Sink. The database handle is not closed.
func (s *TableSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info().Int("rows", s.rows).Msg("History table sink closed")
	return nil
}

// Kind implements Sink.
func (s *TableSink) Kind() Kind { return KindTable }

func (s *TableSink) sealed() {}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func splitRow(row string) []string {
	return strings.Split(strings.TrimRight(row, "\r"), ";")
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
