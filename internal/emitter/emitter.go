// Package emitter writes the i3bar protocol stream.
//
// The stream is a header object followed by an infinite JSON array of
// status lines. Each line after the first is prefixed with a comma so the
// array stays well formed while it grows:
//
//	{"version":1}
//	[
//	[]
//	,[{"name":"clock","full_text":"12:00"}]
//
// Every line is flushed as soon as it is written. i3bar redraws on each
// complete line, so buffering across lines would only delay updates.
//
// There is no flow control. Emit blocks until the line has been handed to
// the underlying writer; if the bar stops reading its stdin, the pipe
// fills and the service loop stalls with it, and callers of ShowBlock wait
// until their own context ends. The bar closing stdin ends the process.
//
// The empty first array is part of the preamble rather than an emission
// so the first real line can always start with a comma.
package emitter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/dstatus/internal/block"
)

// Preamble is the header and opening of the infinite array.
const Preamble = "{\"version\":1}\n[\n[]\n"

var (
	// ErrPreambleWritten is returned by a second Preamble call.
	ErrPreambleWritten = errors.New("preamble already written")

	// ErrNoPreamble is returned by Emit before Preamble.
	ErrNoPreamble = errors.New("preamble not written")
)

// Emitter serializes block lists to w. Writes are synchronous: a reader
// that stops draining w blocks the caller.
type Emitter struct {
	mu       sync.Mutex
	w        *bufio.Writer
	started  bool
	lines    int
	observer func(line []byte)
}

// New returns an Emitter writing to w.
func New(w io.Writer) *Emitter {
	return &Emitter{w: bufio.NewWriter(w)}
}

// OnLine registers fn to be called with each emitted line, without the
// trailing newline. It is used to journal the stream.
func (e *Emitter) OnLine(fn func(line []byte)) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

// Preamble writes the protocol header. It may only be called once.
func (e *Emitter) Preamble() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrPreambleWritten
	}
	if _, err := e.w.WriteString(Preamble); err != nil {
		return fmt.Errorf("write preamble: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("flush preamble: %w", err)
	}
	e.started = true
	return nil
}

// Emit writes one status line and flushes.
func (e *Emitter) Emit(blocks []block.Block) error {
	data, err := block.MarshalList(blocks)
	if err != nil {
		return fmt.Errorf("encode status line: %w", err)
	}
	return e.EmitRaw(data)
}

// EmitRaw writes an already encoded status line and flushes. It is used
// by replay.
func (e *Emitter) EmitRaw(line []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ErrNoPreamble
	}
	e.w.WriteByte(',')
	e.w.Write(line)
	e.w.WriteByte('\n')
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("write status line: %w", err)
	}
	e.lines++
	if e.observer != nil {
		e.observer(line)
	}
	return nil
}

// Lines returns how many status lines were written.
func (e *Emitter) Lines() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines
}
