// Package server runs the reactor: one goroutine owns the registry, the
// command table and every connection, and reacts to events sent by the
// acceptor and the per-connection pumps.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pkdindustries/ircd/internal/commands"
	"pkdindustries/ircd/internal/config"
	"pkdindustries/ircd/internal/core"
	"pkdindustries/ircd/internal/irc"
	"pkdindustries/ircd/internal/metrics"
	"pkdindustries/ircd/internal/registry"
	"pkdindustries/ircd/internal/store"
	"pkdindustries/ircd/internal/stream"
)

const (
	reasonShutdown    = "Server shutting down"
	reasonPingTimeout = "Ping timeout"
	reasonLineTooLong = "Line too long"
	reasonClosed      = "Connection closed"
	reasonReadError   = "Read error"
	reasonWriteError  = "Write error"
)

// Accept failures other than a closed listener are retried with a delay
// that doubles from minAcceptDelay up to maxAcceptDelay.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Options tune a Server beyond its configuration.
type Options struct {
	Version string

	// Logger defaults to core.GetLogger().
	Logger *zap.SugaredLogger

	// Clock defaults to time.Now. It is used for channel and topic
	// timestamps only; keepalive uses the wall clock.
	Clock func() time.Time
}

type Server struct {
	cfg      *config.Configuration
	env      *commands.Env
	commands *commands.Registry
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
	log      *zap.SugaredLogger

	listener net.Listener
	ready    chan struct{}
	events   chan event
	conns    map[string]*conn
	open     atomic.Int64
}

// New loads persisted state and builds the command table. It does not
// touch the network.
func New(cfg *config.Configuration, opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = core.GetLogger()
	}

	cmds, err := commands.NewServerRegistry()
	if err != nil {
		return nil, fmt.Errorf("command table: %w", err)
	}

	reg := registry.New()
	history, err := store.LoadNicks(cfg.Files.Nicks)
	if err != nil {
		return nil, fmt.Errorf("loading nick history: %w", err)
	}
	reg.LoadHistory(history)

	archive, err := store.OpenArchive(cfg.Files.Channels)
	if err != nil {
		return nil, fmt.Errorf("loading channels: %w", err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.NewMetrics(promReg)

	s := &Server{
		cfg:      cfg,
		commands: cmds,
		metrics:  m,
		promReg:  promReg,
		log:      log,
		ready:    make(chan struct{}),
		events:   make(chan event, 64),
		conns:    make(map[string]*conn),
	}
	s.env = &commands.Env{
		Config:   cfg,
		Registry: reg,
		Archive:  archive,
		Metrics:  m,
		Stats:    s,
		Started:  time.Now(),
		Version:  opts.Version,
		Log:      log,
		Clock:    opts.Clock,
	}

	log.Infow("State loaded", "nicks", len(history), "channels", archive.Len())
	return s, nil
}

// Connections reports the number of open connections, registered or not.
func (s *Server) Connections() int { return int(s.open.Load()) }

// Addr blocks until Run has tried to listen and returns the bound
// address, or nil if listening failed.
func (s *Server) Addr() net.Addr {
	<-s.ready
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves until ctx is cancelled, then shuts down gracefully: clients
// get a closing ERROR, queues drain for up to the shutdown timeout, and
// nick history and channels are written out. Only listener failures are
// returned as errors.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		close(s.ready)
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	close(s.ready)
	s.log.Infow("Listening", "addr", ln.Addr().String(), "name", s.cfg.Server.Name)

	// Pumps outlive ctx so that queued output can drain during shutdown.
	pumps, stopPumps := context.WithCancel(context.Background())
	defer stopPumps()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.accept(gctx) })
	g.Go(func() error { return s.loop(gctx, pumps) })
	if s.cfg.Metrics.Addr != "" {
		ms := metrics.NewServer(s.cfg.Metrics.Addr, s.promReg, s.log)
		g.Go(func() error { return ms.Run(gctx) })
	}
	return g.Wait()
}

func (s *Server) accept(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.listener.Close() })
	defer stop()

	var delay time.Duration
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			delay = min(max(2*delay, minAcceptDelay), maxAcceptDelay)
			s.log.Warnw("Accept failed, retrying", "error", err, "delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		delay = 0

		select {
		case s.events <- event{kind: evAccepted, netConn: nc}:
		case <-ctx.Done():
			nc.Close()
			return nil
		}
	}
}

func (s *Server) loop(ctx, pumps context.Context) error {
	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.handle(pumps, ev)
		case now := <-ticker.C:
			s.housekeeping(now)
		}
	}
}

// tickInterval is fine enough that keepalive deadlines are not overshot by
// more than a fraction of the shorter timer.
func (s *Server) tickInterval() time.Duration {
	d := min(s.cfg.Timers.PingInterval, s.cfg.Timers.PingTimeout) / 4
	return max(d, 10*time.Millisecond)
}

func (s *Server) handle(pumps context.Context, ev event) {
	if ev.kind == evAccepted {
		s.admit(pumps, ev.netConn)
		return
	}

	c, ok := s.conns[ev.conn.id]
	if !ok || c != ev.conn {
		return
	}

	switch ev.kind {
	case evLines:
		s.process(c, ev.lines)
	case evDrained:
		_, reason := c.user.Quitting()
		s.teardown(c, reason)
	case evClosed:
		s.closed(c, ev.from, ev.err)
	}
}

// admit sets up a connection and its user and starts both pumps.
func (s *Server) admit(pumps context.Context, nc net.Conn) {
	host := remoteHost(nc.RemoteAddr())
	id := uuid.NewString()
	queue := stream.NewQueue()

	limit := rate.Limit(s.cfg.Limits.FloodRate)
	if limit == 0 {
		limit = rate.Inf
	}

	c := &conn{
		id:         id,
		netConn:    nc,
		stream:     stream.New(nc, queue, s.cfg.Timers.WriteTimeout),
		queue:      queue,
		user:       registry.NewUser(host, queue),
		limiter:    rate.NewLimiter(limit, s.cfg.Limits.FloodBurst),
		metrics:    s.metrics,
		log:        core.WithConn(s.log, id, host),
		lastActive: time.Now(),
	}
	c.ctx, c.cancel = context.WithCancel(pumps)

	s.conns[id] = c
	s.open.Add(1)
	s.metrics.RecordAccept()
	c.log.Infow("Connection accepted")

	go c.readPump(s.events)
	go c.writePump(s.events)
}

// process parses a batch of lines and dispatches each message in order.
// Once the user starts quitting the rest of the batch is dropped.
func (s *Server) process(c *conn, lines []string) {
	c.lastActive = time.Now()
	c.pingSent = time.Time{}

	log := c.log
	if c.user.Registered() {
		log = core.WithUser(log, c.user.Nick, c.user.Username)
	}

	msgs := irc.ParseAll(lines, log)
	if dropped := len(lines) - len(msgs); dropped > 0 {
		s.metrics.RecordParseErrors(dropped)
	}

	for _, msg := range msgs {
		if quitting, _ := c.user.Quitting(); quitting {
			return
		}
		start := time.Now()
		s.commands.Dispatch(commands.NewContext(s.env, c.user, msg, log))

		label := msg.Command
		if _, known := s.commands.Get(label); !known {
			label = "unknown"
		}
		s.metrics.RecordMessage(label, time.Since(start))
	}
}

// closed handles a pump failure. An oversized line gets a closing ERROR
// and a graceful drain. While quitting, read failures are left to the
// write pump, which reports once queued output is gone. Anything else
// closes the socket immediately.
func (s *Server) closed(c *conn, from pump, err error) {
	quitting, reason := c.user.Quitting()
	switch {
	case quitting && from == reader:
		return
	case errors.Is(err, stream.ErrLineTooLong):
		c.log.Infow("Line too long, closing")
		quit(c.user, reasonLineTooLong)
		return
	case !quitting:
		reason = failureReason(from, err)
		c.log.Debugw("Connection failed", "pump", from, "error", err)
	}
	s.teardown(c, reason)
}

// failureReason is the QUIT reason peers see for an unrequested close.
func failureReason(from pump, err error) string {
	switch {
	case from == writer:
		return reasonWriteError
	case errors.Is(err, stream.ErrClosed):
		return reasonClosed
	default:
		return reasonReadError
	}
}

// teardown removes the connection and its user. Peers sharing a channel
// see a QUIT, and channels left empty are archived.
func (s *Server) teardown(c *conn, reason string) {
	if _, ok := s.conns[c.id]; !ok {
		return
	}
	delete(s.conns, c.id)
	s.open.Add(-1)

	u := c.user
	if u.Registered() {
		line := commands.Relay(u, girc.QUIT, nil, reason)
		for _, peer := range s.env.Registry.Peers(u) {
			peer.Send(line)
		}
		s.env.RetireChannels(s.env.Registry.RemoveUser(u)...)
	}
	u.Quit(reason)

	c.cancel()
	c.queue.Close()
	if err := c.netConn.Close(); err != nil {
		c.log.Debugw("Close failed", "error", err)
	}

	s.metrics.RecordDisconnect(disconnectLabel(reason))
	s.metrics.SetPopulation(s.env.Registry.UserCount(), s.env.Registry.ChannelCount())
	c.log.Infow("Connection closed", "nick", u.Nick, "reason", reason)
}

// quit starts a graceful close: the ERROR line is the last thing queued.
func quit(u *registry.User, reason string) {
	u.Send(commands.ClosingLink(u.Hostname, reason))
	u.Quit(reason)
}

func disconnectLabel(reason string) string {
	switch reason {
	case reasonShutdown, reasonPingTimeout, reasonLineTooLong, reasonClosed, reasonReadError, reasonWriteError:
		return reason
	}
	if strings.HasPrefix(reason, "Killed ") {
		return "Killed"
	}
	return "Quit"
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
