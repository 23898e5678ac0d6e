package firewall

import "sync"

// DefaultLogLimit is the ring buffer capacity used when none is configured.
const DefaultLogLimit = 1000

// LogBuffer is a thread-safe circular buffer of log records. Once full, each
// insert evicts the oldest record.
type LogBuffer struct {
	entries []LogRecord
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewLogBuffer creates a ring buffer with the given capacity.
// Non-positive sizes fall back to DefaultLogLimit.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultLogLimit
	}
	return &LogBuffer{
		entries: make([]LogRecord, size),
		size:    size,
	}
}

// Add appends a record, evicting the oldest when the buffer is full.
func (rb *LogBuffer) Add(entry LogRecord) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// GetAll returns all records, oldest first.
func (rb *LogBuffer) GetAll() []LogRecord {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.lastLocked(rb.count)
}

// GetLast returns the n most recent records, oldest first.
func (rb *LogBuffer) GetLast(n int) []LogRecord {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}
	if n < 0 {
		n = 0
	}
	return rb.lastLocked(n)
}

func (rb *LogBuffer) lastLocked(n int) []LogRecord {
	result := make([]LogRecord, n)
	start := (rb.head - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		result[i] = rb.entries[(start+i)%rb.size]
	}
	return result
}

// Count returns the number of records currently held.
func (rb *LogBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Cap returns the buffer capacity.
func (rb *LogBuffer) Cap() int {
	return rb.size
}

// Clear removes all records.
func (rb *LogBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.entries)
	rb.head = 0
	rb.count = 0
}
