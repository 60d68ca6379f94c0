package log

import (
	"fmt"
	"io"
	"sync"
)

// DefaultBacklogSize is used when [NewBacklog] is given a non-positive size.
const DefaultBacklogSize = 100

// Backlog holds the most recent log records written during a run, so they
// can be replayed on the console once the run's own output is finished.
//
// Each call to Write is treated as one record. When the backlog is full the
// oldest record is overwritten and counted in [Backlog.Dropped].
type Backlog struct {
	records [][]byte
	next    int
	count   int
	dropped int
	mu      sync.Mutex
}

// NewBacklog returns a [Backlog] that keeps up to size records.
func NewBacklog(size int) *Backlog {
	if size <= 0 {
		size = DefaultBacklogSize
	}

	return &Backlog{records: make([][]byte, size)}
}

// Write implements [io.Writer]. Empty writes are ignored.
func (b *Backlog) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Handlers may reuse p after Write returns.
	rec := append([]byte(nil), p...)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.records) {
		b.dropped++
	} else {
		b.count++
	}

	b.records[b.next] = rec
	b.next = (b.next + 1) % len(b.records)

	return len(p), nil
}

// Records returns copies of the held records, oldest first.
func (b *Backlog) Records() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]byte, 0, b.count)
	for i := range b.count {
		out = append(out, append([]byte(nil), b.records[b.index(i)]...))
	}

	return out
}

// index maps the i-th oldest record to its slot.
func (b *Backlog) index(i int) int {
	return (b.next - b.count + i + len(b.records)) % len(b.records)
}

// Len returns the number of held records.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Cap returns the maximum number of records held.
func (b *Backlog) Cap() int {
	return len(b.records)
}

// Dropped returns how many records were overwritten since the last [Backlog.Reset].
func (b *Backlog) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}

// Reset discards all records.
func (b *Backlog) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.records)
	b.next, b.count, b.dropped = 0, 0, 0
}

// WriteTo implements [io.WriterTo]. If records were dropped, a notice line
// naming the count is written before the oldest remaining record.
func (b *Backlog) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64

	if b.dropped > 0 {
		n, err := fmt.Fprintf(w, "... %d earlier log records dropped\n", b.dropped)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write notice: %w", err)
		}
	}

	for i := range b.count {
		n, err := w.Write(b.records[b.index(i)])
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write record %d: %w", i, err)
		}
	}

	return total, nil
}
