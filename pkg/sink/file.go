package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxSuffix bounds the " (n)" collision search.
const maxSuffix = 10000

// FileContainer resolves the file a FileSink writes to. An explicit path that
// already exists gets a " (n)" suffix before its extension; without a path a
// unique name is generated.
type FileContainer struct {
	path string
	dir  string

	now   func() time.Time
	newID func() string
}

// NewFileContainer creates a container for path, or for a generated name in
// dir when path is empty.
func NewFileContainer(path, dir string) *FileContainer {
	return &FileContainer{
		path:  path,
		dir:   dir,
		now:   time.Now,
		newID: func() string { return uuid.NewString()[:8] },
	}
}

// Path returns the resolved path; empty before Create.
func (c *FileContainer) Path() string {
	return c.path
}

// Create picks a free name and creates the file exclusively.
func (c *FileContainer) Create() (*os.File, error) {
	base := c.path
	if base == "" {
		name := fmt.Sprintf("history_%s_%s.csv", c.now().Format("20060102150405"), c.newID())
		base = filepath.Join(c.dir, name)
	}

	if dir := filepath.Dir(base); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := base
	for n := 1; n <= maxSuffix; n++ {
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			c.path = candidate
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}

	return nil, fmt.Errorf("no free file name for %s", base)
}

// FileSink appends rows to a CSV file. The header is written once, from the
// first header batch.
type FileSink struct {
	container *FileContainer
	logger    zerolog.Logger

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	header bool
	rows   int
	closed bool
}

// NewFileSink creates the container's file and returns a sink writing to it.
func NewFileSink(container *FileContainer, logger zerolog.Logger) (*FileSink, error) {
	f, err := container.Create()
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", container.Path()).Msg("Writing history to file")

	return &FileSink{
		container: container,
		logger:    logger,
		file:      f,
		w:         bufio.NewWriter(f),
	}, nil
}

// Path returns the file being written.
func (s *FileSink) Path() string {
	return s.container.Path()
}

// Process implements Sink.
func (s *FileSink) Process(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if b.Header {
		if s.header {
			return nil
		}
		s.header = true
	}

	for _, row := range b.Rows {
		if _, err := s.w.WriteString(row); err != nil {
			return fmt.Errorf("write %s: %w", s.Path(), err)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write %s: %w", s.Path(), err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", s.Path(), err)
	}

	if !b.Header {
		s.rows += len(b.Rows)
		rowsWrittenTotal.WithLabelValues(string(KindFile)).Add(float64(len(b.Rows)))
	}
	return nil
}

// Close implements Sink.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.w.Flush()
	closeErr := s.file.Close()

	s.logger.Info().
		Str("path", s.Path()).
		Int("rows", s.rows).
		Msg("History file closed")

	return errors.Join(flushErr, closeErr)
}

// Kind implements Sink.
func (s *FileSink) Kind() Kind { return KindFile }

func (s *FileSink) sealed() {}
