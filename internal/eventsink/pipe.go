// Package eventsink implements the byte-oriented state-change pipe: a
// bfd.EventSink that encodes each transition as a fixed 32-byte NUL-padded
// name, one byte of state, and a monotonic timestamp, then writes that
// record to an io.Writer. The reader on the other end — a supervisor
// process, a log shipper, anything — is free to debounce or drop; this
// side's only obligation is to never block the dispatcher goroutine that
// calls Emit.
package eventsink

import (
	"encoding/binary"
	"io"
	"log/slog"
	"time"

	"github.com/dantte-lp/bfdd/internal/bfd"
)

// recordSize is 32 bytes of name + 1 byte of state + 8 bytes of monotonic
// nanoseconds.
const recordSize = 32 + 1 + 8

// Pipe writes bfd.StateChangeEvents to w as fixed-size binary records.
// Emit enqueues onto an internal buffered channel and returns immediately;
// a background goroutine started by Run drains the channel and performs
// the (possibly blocking) write. A full buffer means the event is dropped
// and logged, never that Emit blocks.
type Pipe struct {
	w      io.Writer
	events chan bfd.StateChangeEvent
	logger *slog.Logger
	epoch  time.Time
}

var _ bfd.EventSink = (*Pipe)(nil)

// NewPipe creates a Pipe writing to w. bufferSize bounds the internal
// channel; callers typically size this from config.EventSinkConfig.BufferSize.
func NewPipe(w io.Writer, bufferSize int, logger *slog.Logger) *Pipe {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipe{
		w:      w,
		events: make(chan bfd.StateChangeEvent, bufferSize),
		logger: logger.With(slog.String("component", "eventsink")),
		epoch:  time.Now(),
	}
}

// Emit enqueues ev for writing. Never blocks: a full buffer drops the
// event and logs it at debug, matching bfd.EventSink's best-effort contract.
func (p *Pipe) Emit(ev bfd.StateChangeEvent) {
	select {
	case p.events <- ev:
	default:
		p.logger.Debug("event pipe buffer full, dropping state change",
			slog.String("session", ev.Name),
		)
	}
}

// Run drains queued events and writes them to the underlying writer. It
// blocks until ctx is cancelled via the done channel closing, or the
// events channel is closed; callers typically run this as an errgroup
// goroutine alongside the dispatcher.
func (p *Pipe) Run(done <-chan struct{}) error {
	for {
		select {
		case <-done:
			return nil

		case ev, ok := <-p.events:
			if !ok {
				return nil
			}
			if err := p.write(ev); err != nil {
				p.logger.Debug("event pipe write failed, dropping record",
					slog.String("session", ev.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// write encodes and writes one fixed-size record.
func (p *Pipe) write(ev bfd.StateChangeEvent) error {
	var buf [recordSize]byte

	n := copy(buf[:32], ev.Name)
	_ = n // name longer than 32 bytes is truncated by copy; shorter is NUL-padded by the zero-valued array.

	buf[32] = byte(ev.NewState)

	elapsed := uint64(ev.Time.Sub(p.epoch).Nanoseconds())
	binary.BigEndian.PutUint64(buf[33:41], elapsed)

	_, err := p.w.Write(buf[:])
	return err
}

// Decode parses one fixed-size record back into its fields, for readers
// and tests. name is the NUL-trimmed original string.
func Decode(record []byte) (name string, state bfd.State, elapsed time.Duration, ok bool) {
	if len(record) != recordSize {
		return "", 0, 0, false
	}

	nameEnd := 0
	for nameEnd < 32 && record[nameEnd] != 0 {
		nameEnd++
	}
	name = string(record[:nameEnd])
	state = bfd.State(record[32])
	elapsed = time.Duration(binary.BigEndian.Uint64(record[33:41]))

	return name, state, elapsed, true
}
