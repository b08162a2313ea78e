package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pkdindustries/ircd/internal/config"
)

func TestPing(t *testing.T) {
	h := newHarness(t)
	u, out := h.connect()

	h.send(u, "PING :abc123")
	assert.Equal(t, []string{":irc.test.local PONG irc.test.local :abc123"}, out.Take())

	h.send(u, "PING")
	assert.Equal(t, []string{":irc.test.local PONG irc.test.local :irc.test.local"}, out.Take())

	h.send(u, "PONG :irc.test.local")
	assert.Empty(t, out.Lines())
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	alice, out := h.register("alice")

	h.send(alice, "QUIT :see you")
	assert.Equal(t, []string{"ERROR :Closing Link: 127.0.0.1 (see you)"}, out.Lines())
	assert.True(t, out.Closed())

	quitting, reason := alice.Quitting()
	assert.True(t, quitting)
	assert.Equal(t, "see you", reason)

	alice.Send("late line\r\n")
	assert.Len(t, out.Lines(), 1)
}

func TestQuit_BeforeRegistration(t *testing.T) {
	h := newHarness(t)
	u, out := h.connect()
	h.send(u, "QUIT")
	assert.Equal(t, []string{"ERROR :Closing Link: 127.0.0.1 (Client Quit)"}, out.Lines())
	assert.True(t, out.Closed())
}

func TestAway(t *testing.T) {
	h := newHarness(t)
	alice, out := h.register("alice")

	h.send(alice, "AWAY :brb")
	assert.Equal(t, "brb", alice.Away)
	h.send(alice, "AWAY")
	assert.Empty(t, alice.Away)
	assert.Equal(t, []string{"306", "305"}, out.Commands())
}

func operConfig(t *testing.T) config.Oper {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.Oper{Name: "admin", Hash: string(hash)}
}

func TestOper(t *testing.T) {
	h := newHarness(t)
	h.env.Config.Opers = []config.Oper{operConfig(t)}
	alice, out := h.register("alice")

	h.send(alice, "OPER admin")
	h.send(alice, "OPER nobody hunter2")
	h.send(alice, "OPER admin wrong")
	assert.Equal(t, []string{"461", "491", "464"}, out.Commands())
	assert.False(t, alice.Operator)
	out.Take()

	h.send(alice, "OPER admin hunter2")
	assert.Equal(t, []string{":irc.test.local 381 alice :You are now an IRC operator"}, out.Lines())
	assert.True(t, alice.Operator)
	assert.Equal(t, 1, h.env.Registry.OperatorCount())
}

func TestKill(t *testing.T) {
	h := newHarness(t)
	h.env.Config.Opers = []config.Oper{operConfig(t)}
	alice, out := h.register("alice")
	bob, bobOut := h.register("bob")

	h.send(bob, "KILL alice :nope")
	assert.Equal(t, []string{"481"}, bobOut.Commands())
	bobOut.Take()

	h.send(bob, "OPER admin hunter2")
	bobOut.Take()

	h.send(bob, "KILL")
	h.send(bob, "KILL nobody :x")
	assert.Equal(t, []string{"461", "401"}, bobOut.Commands())

	h.send(bob, "KILL alice :spamming")
	assert.Equal(t, []string{"ERROR :Closing Link: 127.0.0.1 (Killed (bob (spamming)))"}, out.Lines())
	assert.True(t, out.Closed())
	quitting, _ := alice.Quitting()
	assert.True(t, quitting)
}
