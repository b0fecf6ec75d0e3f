package testutil

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// SyncBuffer is a bytes.Buffer safe for one writer goroutine and
// concurrent readers. Child process output and the emitter stream are
// captured with it.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns a copy of everything written so far.
func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Lines returns the written text split on newlines, without the empty
// trailing element.
func (b *SyncBuffer) Lines() []string {
	s := strings.TrimSuffix(b.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// WaitFor polls until cond holds for the buffer contents or timeout
// elapses, and reports whether it held.
func (b *SyncBuffer) WaitFor(timeout time.Duration, cond func(string) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond(b.String()) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
