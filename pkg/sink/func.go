package sink

import "context"

// Func is a sink backed by a caller supplied function.
type Func struct {
	fn func(ctx context.Context, b Batch) error
}

// NewFunc wraps fn as a Sink.
func NewFunc(fn func(ctx context.Context, b Batch) error) *Func {
	return &Func{fn: fn}
}

// Process implements Sink.
func (f *Func) Process(ctx context.Context, b Batch) error {
	if err := f.fn(ctx, b); err != nil {
		return err
	}
	if !b.Header {
		rowsWrittenTotal.WithLabelValues(string(KindFunc)).Add(float64(len(b.Rows)))
	}
	return nil
}

// Close implements Sink.
func (f *Func) Close() error { return nil }

// Kind implements Sink.
func (f *Func) Kind() Kind { return KindFunc }

func (f *Func) sealed() {}
