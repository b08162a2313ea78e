package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pkdindustries/ircd/internal/irc"
	"pkdindustries/ircd/internal/registry"
	mocktest "pkdindustries/ircd/internal/testing"
)

var testClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// harness drives handlers the way the server's event loop does, with
// recorded outboxes in place of connections.
type harness struct {
	t        *testing.T
	env      *Env
	commands *Registry
	outboxes map[*registry.User]*mocktest.Outbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cmds, err := NewServerRegistry()
	require.NoError(t, err)
	return &harness{
		t:        t,
		commands: cmds,
		outboxes: make(map[*registry.User]*mocktest.Outbox),
		env: &Env{
			Config:   mocktest.DefaultTestConfig(),
			Registry: registry.New(),
			Started:  testClock,
			Version:  "test",
			Log:      zap.NewNop().Sugar(),
			Clock:    func() time.Time { return testClock },
		},
	}
}

func (h *harness) connect() (*registry.User, *mocktest.Outbox) {
	out := mocktest.NewOutbox()
	u := registry.NewUser("127.0.0.1", out)
	h.outboxes[u] = out
	return u, out
}

func (h *harness) send(u *registry.User, line string) {
	h.t.Helper()
	msg, err := irc.Parse(line)
	require.NoError(h.t, err)
	h.commands.Dispatch(NewContext(h.env, u, msg, nil))
}

// register connects and registers a user whose username and nick are
// both nick, discarding the welcome burst.
func (h *harness) register(nick string) (*registry.User, *mocktest.Outbox) {
	h.t.Helper()
	u, out := h.connect()
	h.send(u, "NICK "+nick)
	h.send(u, "USER "+nick+" 0 * :Real "+nick)
	require.True(h.t, u.Registered(), "%s did not register: %v", nick, out.Lines())
	out.Take()
	return u, out
}

// mustJoin joins u to name and returns u's outbox with the join replies
// discarded.
func mustJoin(t *testing.T, h *harness, u *registry.User, name string) *mocktest.Outbox {
	t.Helper()
	h.send(u, "JOIN "+name)
	require.True(t, u.InChannel(name), "%s did not join %s", u.Nick, name)
	out := h.outboxes[u]
	out.Take()
	return out
}

func modeFromString(s string) registry.ChannelMode {
	var m registry.ChannelMode
	for i := 1; i < len(s); i++ {
		if flag, ok := registry.ModeForLetter(s[i]); ok {
			m |= flag
		}
	}
	return m
}
