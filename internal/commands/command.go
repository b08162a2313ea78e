package commands

import (
	"fmt"
	"sort"

	"github.com/lrstanley/girc"
)

// Command handles one protocol verb
type Command interface {
	Name() string
	Execute(ctx *Context)
	NeedsRegistration() bool
	Usage() []string
}

// Registry maps verbs to commands
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty command registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
	}
}

// Register adds a command, replacing any command with the same name
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// Get retrieves a command by name
func (r *Registry) Get(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Dispatch runs the command named by the message verb. Verbs are matched
// exactly. Unknown verbs get ERR_UNKNOWNCOMMAND from registered users and
// ERR_NOTREGISTERED otherwise. Returns true if a command was executed.
func (r *Registry) Dispatch(ctx *Context) bool {
	verb := ctx.Msg.Command

	cmd, ok := r.commands[verb]
	if !ok {
		if ctx.User.Registered() {
			ctx.Reply(girc.ERR_UNKNOWNCOMMAND, verb, "Unknown command")
		} else {
			ctx.Reply(girc.ERR_NOTREGISTERED, "You have not registered")
		}
		return false
	}

	if cmd.NeedsRegistration() && !ctx.User.Registered() {
		ctx.Reply(girc.ERR_NOTREGISTERED, "You have not registered")
		return false
	}

	cmd.Execute(ctx)
	return true
}

// All returns all registered commands sorted by name
func (r *Registry) All() []Command {
	cmds := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	return cmds
}

// Validate checks the registry against the documented verb list: every
// documented verb has a handler and nothing else is registered.
func (r *Registry) Validate(documented []string) error {
	want := make(map[string]bool, len(documented))
	for _, name := range documented {
		want[name] = true
		if _, ok := r.commands[name]; !ok {
			return fmt.Errorf("command %s has no handler", name)
		}
	}
	for name := range r.commands {
		if !want[name] {
			return fmt.Errorf("command %s is not documented", name)
		}
	}
	return nil
}

// HELP has no girc constant.
const cmdHelp = "HELP"

// Documented lists every verb the server implements.
var Documented = []string{
	girc.NICK, girc.USER, girc.PING, girc.PONG, girc.QUIT,
	girc.PRIVMSG, girc.NOTICE,
	girc.JOIN, girc.PART, girc.TOPIC, girc.MODE,
	girc.LIST, girc.NAMES, girc.WHO, girc.WHOWAS,
	girc.MOTD, girc.LUSERS, girc.INFO, cmdHelp,
	girc.AWAY, girc.OPER, girc.KILL,
}

// NewServerRegistry registers the full command set and validates it.
func NewServerRegistry() (*Registry, error) {
	r := NewRegistry()
	r.Register(&NickCommand{})
	r.Register(&UserCommand{})
	r.Register(&PingCommand{})
	r.Register(&PongCommand{})
	r.Register(&QuitCommand{})
	r.Register(&PrivmsgCommand{})
	r.Register(&PrivmsgCommand{Notice: true})
	r.Register(&JoinCommand{})
	r.Register(&PartCommand{})
	r.Register(&TopicCommand{})
	r.Register(&ModeCommand{})
	r.Register(&ListCommand{})
	r.Register(&NamesCommand{})
	r.Register(&WhoCommand{})
	r.Register(&WhowasCommand{})
	r.Register(&MOTDCommand{})
	r.Register(&LusersCommand{})
	r.Register(&InfoCommand{})
	r.Register(NewHelpCommand(r))
	r.Register(&AwayCommand{})
	r.Register(&OperCommand{})
	r.Register(&KillCommand{})

	if err := r.Validate(Documented); err != nil {
		return nil, err
	}
	return r, nil
}
