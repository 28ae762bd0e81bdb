package supervisor

import (
	"bytes"
	"strings"
	"sync"
)

const maxLineLength = 4096

// lineWriter splits a byte stream into lines and passes each one to emit.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(string)
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.buf = append(lw.buf, p...)
	for {
		i := bytes.IndexAny(lw.buf, "\r\n")
		if i < 0 {
			break
		}
		lw.send(lw.buf[:i])
		lw.buf = lw.buf[i+1:]
	}
	if len(lw.buf) > maxLineLength {
		lw.send(lw.buf)
		lw.buf = lw.buf[:0]
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (lw *lineWriter) Flush() {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.send(lw.buf)
	lw.buf = nil
}

func (lw *lineWriter) send(b []byte) {
	line := strings.TrimSpace(string(b))
	if line != "" {
		lw.emit(line)
	}
}

// ring keeps the most recent n lines.
type ring struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newRing(n int) *ring {
	if n < 1 {
		n = 1
	}
	return &ring{lines: make([]string, n)}
}

func (r *ring) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
