package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pkdindustries/ircd/internal/metrics"
	"pkdindustries/ircd/internal/registry"
	"pkdindustries/ircd/internal/stream"
)

// maxWriteStalls is how many write timeouts in a row without progress the
// write pump tolerates before giving up on the peer.
const maxWriteStalls = 3

var errWriteStalled = errors.New("write stalled")

// conn is one accepted socket. The event loop owns every field except
// stream, which is split between the two pumps, and ctx, which ends both
// pumps when the loop tears the connection down.
type conn struct {
	id      string
	netConn net.Conn
	stream  *stream.Stream
	queue   *stream.Queue
	user    *registry.User
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	lastActive time.Time
	pingSent   time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// emit hands an event to the loop unless the connection is already gone.
func (c *conn) emit(events chan<- event, ev event) bool {
	select {
	case events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// readPump frames inbound bytes into lines and forwards them to the loop.
// Each line costs one token from the flood limiter; a client sending faster
// than the configured rate is slowed down, never dropped.
func (c *conn) readPump(events chan<- event) {
	for {
		_, err := c.stream.Read()

		if lines := c.stream.Lines(); len(lines) > 0 {
			for range lines {
				if c.limiter.Wait(c.ctx) != nil {
					return
				}
			}
			if !c.emit(events, event{kind: evLines, conn: c, lines: lines}) {
				return
			}
		}

		if err != nil {
			c.emit(events, event{kind: evClosed, conn: c, err: err, from: reader})
			return
		}
	}
}

// writePump drains the outbound queue. Once the queue is marked draining
// and everything is written it reports evDrained and exits.
func (c *conn) writePump(events chan<- event) {
	stalls := 0
	for {
		for !c.stream.Flushed() {
			n, err := c.stream.Write()
			if err != nil {
				c.emit(events, event{kind: evClosed, conn: c, err: err, from: writer})
				return
			}
			if n == 0 && c.stream.Pending() {
				stalls++
				if stalls >= maxWriteStalls {
					c.emit(events, event{kind: evClosed, conn: c, err: errWriteStalled, from: writer})
					return
				}
				continue
			}
			stalls = 0
			if n > 0 && !c.stream.Pending() {
				c.metrics.RecordLineSent()
			}
		}

		if c.queue.Draining() && c.stream.Flushed() {
			c.emit(events, event{kind: evDrained, conn: c})
			return
		}

		select {
		case <-c.queue.Notify():
		case <-c.ctx.Done():
			return
		}
	}
}
