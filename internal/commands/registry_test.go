package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCommand struct {
	name     string
	needsReg bool
	executed bool
}

func (c *mockCommand) Name() string            { return c.name }
func (c *mockCommand) NeedsRegistration() bool { return c.needsReg }
func (c *mockCommand) Usage() []string         { return []string{c.name} }
func (c *mockCommand) Execute(ctx *Context)    { c.executed = true }

func TestRegistry_NewServerRegistryIsComplete(t *testing.T) {
	r, err := NewServerRegistry()
	require.NoError(t, err)
	assert.Len(t, r.All(), len(Documented))
	for _, verb := range Documented {
		_, ok := r.Get(verb)
		assert.True(t, ok, "missing %s", verb)
	}
}

func TestRegistry_Validate(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockCommand{name: "A"})

	assert.NoError(t, r.Validate([]string{"A"}))
	assert.Error(t, r.Validate([]string{"A", "B"}), "documented verb without handler")

	r.Register(&mockCommand{name: "C"})
	assert.Error(t, r.Validate([]string{"A"}), "undocumented handler")
}

func TestRegistry_AllSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockCommand{name: "ZED"})
	r.Register(&mockCommand{name: "ALPHA"})
	r.Register(&mockCommand{name: "MID"})

	var names []string
	for _, cmd := range r.All() {
		names = append(names, cmd.Name())
	}
	assert.Equal(t, []string{"ALPHA", "MID", "ZED"}, names)
}

func TestRegistry_Dispatch(t *testing.T) {
	h := newHarness(t)
	open := &mockCommand{name: "OPEN"}
	closed := &mockCommand{name: "CLOSED", needsReg: true}
	h.commands.Register(open)
	h.commands.Register(closed)

	u, out := h.connect()
	h.send(u, "CLOSED")
	assert.False(t, closed.executed)
	assert.Equal(t, []string{"451"}, out.Commands())

	h.send(u, "OPEN")
	assert.True(t, open.executed)

	out.Take()
	h.send(u, "BOGUS")
	assert.Equal(t, []string{"451"}, out.Commands(), "unknown verb before registration")

	reg, regOut := h.register("alice")
	h.send(reg, "CLOSED")
	assert.True(t, closed.executed)

	h.send(reg, "BOGUS")
	assert.Equal(t, []string{":irc.test.local 421 alice BOGUS :Unknown command"}, regOut.Take())
}

func TestRegistry_VerbsMatchExactly(t *testing.T) {
	h := newHarness(t)
	u, out := h.register("alice")

	h.send(u, "ping token")
	assert.Equal(t, []string{"421"}, out.Commands())
}
