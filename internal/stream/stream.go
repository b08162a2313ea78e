// Package stream frames a connection's byte stream into CRLF terminated
// lines and drains an outbound queue back onto the wire.
package stream

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// MaxLineLength is the largest line accepted or sent, terminator included.
const MaxLineLength = 512

var (
	ErrLineTooLong = errors.New("line exceeds 512 bytes without terminator")
	ErrClosed      = errors.New("connection closed by peer")
)

var crlf = []byte("\r\n")

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Stream holds the read and write buffers of one connection. Read and
// Lines belong to the read pump, Write and Pending to the write pump; the
// two halves share nothing but the Queue.
type Stream struct {
	conn         io.ReadWriter
	out          *Queue
	writeTimeout time.Duration

	rbuf    [MaxLineLength]byte
	rlen    int
	inbound []string

	wbuf []byte
	woff int
}

// New wraps conn. A non-zero writeTimeout bounds each Write call when the
// connection supports deadlines; a write that times out is resumed later.
func New(conn io.ReadWriter, out *Queue, writeTimeout time.Duration) *Stream {
	return &Stream{conn: conn, out: out, writeTimeout: writeTimeout}
}

func (s *Stream) Queue() *Queue { return s.out }

// Read performs one read into the tail of the read buffer and frames every
// complete line it now holds. Lines are collected with Lines. A read that
// times out yields no data and no error. A peer that hangs up, cleanly or
// with a reset, yields ErrClosed.
func (s *Stream) Read() (int, error) {
	if s.rlen == len(s.rbuf) {
		return 0, ErrLineTooLong
	}

	n, err := s.conn.Read(s.rbuf[s.rlen:])
	if n > 0 {
		s.rlen += n
		s.frame()
	}
	if err != nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return n, nil
		case hungUp(err):
			return n, ErrClosed
		default:
			return n, err
		}
	}
	if s.rlen == len(s.rbuf) {
		return n, ErrLineTooLong
	}
	return n, nil
}

func hungUp(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET)
}

func (s *Stream) frame() {
	start := 0
	for {
		i := bytes.Index(s.rbuf[start:s.rlen], crlf)
		if i < 0 {
			break
		}
		s.inbound = append(s.inbound, string(s.rbuf[start:start+i]))
		start += i + len(crlf)
	}
	if start > 0 {
		copy(s.rbuf[:], s.rbuf[start:s.rlen])
		s.rlen -= start
	}
}

// Lines returns the framed lines in arrival order and empties the inbound
// queue.
func (s *Stream) Lines() []string {
	lines := s.inbound
	s.inbound = nil
	return lines
}

// Write resumes a partial write if one is pending, otherwise pops the next
// queued line and starts sending it. It returns 0 with a nil error when
// there is nothing to send.
func (s *Stream) Write() (int, error) {
	if !s.Pending() {
		line, ok := s.out.Pop()
		if !ok {
			return 0, nil
		}
		s.wbuf = append(s.wbuf[:0], line...)
		s.woff = 0
	}

	if d, ok := s.conn.(writeDeadliner); ok && s.writeTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}

	n, err := s.conn.Write(s.wbuf[s.woff:])
	s.woff += n
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// Pending reports whether a partially written line is waiting to be resumed.
func (s *Stream) Pending() bool {
	return s.woff < len(s.wbuf)
}

// Flushed reports whether every queued line has been written in full.
func (s *Stream) Flushed() bool {
	return !s.Pending() && s.out.Len() == 0
}
