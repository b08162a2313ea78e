package server

import (
	"time"

	"pkdindustries/ircd/internal/core"
	"pkdindustries/ircd/internal/irc"
	"pkdindustries/ircd/internal/store"
)

// housekeeping pings idle connections and closes those that never answer.
func (s *Server) housekeeping(now time.Time) {
	for _, c := range s.conns {
		if quitting, _ := c.user.Quitting(); quitting {
			continue
		}
		switch {
		case !c.pingSent.IsZero():
			if now.Sub(c.pingSent) >= s.cfg.Timers.PingTimeout {
				c.log.Infow("Ping timeout", "idle", now.Sub(c.lastActive).Round(time.Second))
				quit(c.user, reasonPingTimeout)
			}
		case now.Sub(c.lastActive) >= s.cfg.Timers.PingInterval:
			c.user.Send(irc.Format("PING :%s", s.cfg.Server.Name))
			c.pingSent = now
		}
	}
}

// shutdown runs on the loop once the server context is done. Every client
// gets a closing ERROR and the loop keeps serving drain events until all
// connections are gone or the shutdown timeout passes.
func (s *Server) shutdown() {
	s.log.Infow("Shutting down", "connections", len(s.conns))

	for _, c := range s.conns {
		quit(c.user, reasonShutdown)
	}

	deadline := time.NewTimer(s.cfg.Timers.ShutdownTimeout)
	defer deadline.Stop()

drain:
	for len(s.conns) > 0 {
		select {
		case ev := <-s.events:
			switch ev.kind {
			case evAccepted:
				ev.netConn.Close()
			case evDrained, evClosed:
				if c, ok := s.conns[ev.conn.id]; ok && c == ev.conn {
					s.teardown(c, reasonShutdown)
				}
			}
		case <-deadline.C:
			s.log.Warnw("Shutdown timeout, closing remaining connections", "connections", len(s.conns))
			break drain
		}
	}
	for _, c := range s.conns {
		s.teardown(c, reasonShutdown)
	}

	s.persist()
}

// persist writes the nick history and the state of every live channel.
func (s *Server) persist() {
	defer core.LogDuration(s.log, "persist", time.Now())

	for _, ch := range s.env.Registry.Channels() {
		s.env.RecordChannel(ch)
	}
	if err := s.env.Archive.Save(); err != nil {
		s.log.Errorw("Failed to save channels", "path", s.cfg.Files.Channels, "error", err)
		s.metrics.RecordPersistenceError("channels")
	}

	if s.cfg.Files.Nicks == "" {
		return
	}
	if err := store.SaveNicks(s.cfg.Files.Nicks, s.env.Registry.History()); err != nil {
		s.log.Errorw("Failed to save nick history", "path", s.cfg.Files.Nicks, "error", err)
		s.metrics.RecordPersistenceError("nicks")
		return
	}
	s.log.Infow("State saved", "nicks", len(s.env.Registry.History()), "channels", s.env.Archive.Len())
}
