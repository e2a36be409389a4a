package sink

import (
	"context"
	"sync"
)

// MemorySink keeps the header and rows of every instrument in memory.
type MemorySink struct {
	mu     sync.RWMutex
	order  []string
	seen   map[string]bool
	header map[string][]string
	rows   map[string][]string
	closed bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		seen:   make(map[string]bool),
		header: make(map[string][]string),
		rows:   make(map[string][]string),
	}
}

// Process implements Sink.
func (s *MemorySink) Process(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if !s.seen[b.SecID] {
		s.seen[b.SecID] = true
		s.order = append(s.order, b.SecID)
	}

	if b.Header {
		if len(b.Rows) > 0 {
			s.header[b.SecID] = splitRow(b.Rows[0])
		}
		return nil
	}

	s.rows[b.SecID] = append(s.rows[b.SecID], b.Rows...)
	rowsWrittenTotal.WithLabelValues(string(KindMemory)).Add(float64(len(b.Rows)))
	return nil
}

// SecIDs returns the instruments seen, in arrival order.
func (s *MemorySink) SecIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Header returns the columns received for secID.
func (s *MemorySink) Header(secID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.header[secID]...)
}

// Rows returns the raw rows received for secID.
func (s *MemorySink) Rows(secID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.rows[secID]...)
}

// Len returns the total number of rows held.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rows {
		n += len(r)
	}
	return n
}

// Quotes parses the rows of secID into typed quotes.
func (s *MemorySink) Quotes(secID string) ([]Quote, error) {
	return ParseQuotes(s.Header(secID), s.Rows(secID))
}

// Close implements Sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Kind implements Sink.
func (s *MemorySink) Kind() Kind { return KindMemory }

func (s *MemorySink) sealed() {}
