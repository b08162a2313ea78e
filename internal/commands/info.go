package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/girc"

	"pkdindustries/ircd/internal/irc"
)

// motdWidth leaves room for the reply prefix inside the line limit.
const motdWidth = 400

// MOTDCommand shows the message of the day.
type MOTDCommand struct{}

func (c *MOTDCommand) Name() string            { return girc.MOTD }
func (c *MOTDCommand) NeedsRegistration() bool { return true }
func (c *MOTDCommand) Usage() []string {
	return []string{"MOTD", "Shows the message of the day."}
}

func (c *MOTDCommand) Execute(ctx *Context) {
	sendMOTD(ctx, true)
}

// sendMOTD reads the MOTD file on every call so edits show up without a
// restart. The registration burst omits RPL_MOTDSTART.
func sendMOTD(ctx *Context, withStart bool) {
	lines, err := readMOTD(ctx.Config.Files.MOTD)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			ctx.Log.Warnw("Failed to read MOTD", "path", ctx.Config.Files.MOTD, "error", err)
		}
		ctx.Reply(girc.ERR_NOMOTD, "MOTD File is missing")
		return
	}

	if withStart {
		ctx.Reply(girc.RPL_MOTDSTART, fmt.Sprintf("- %s Message of the day - ", ctx.ServerName()))
	}
	for _, line := range lines {
		for _, part := range irc.Wrap(line, motdWidth) {
			ctx.Reply(girc.RPL_MOTD, "- "+part)
		}
	}
	ctx.Reply(girc.RPL_ENDOFMOTD, "End of MOTD command")
}

func readMOTD(path string) ([]string, error) {
	if path == "" {
		return nil, fs.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if text == "" {
		return nil, fs.ErrNotExist
	}
	return strings.Split(text, "\n"), nil
}

// LusersCommand reports population counts.
type LusersCommand struct{}

func (c *LusersCommand) Name() string            { return girc.LUSERS }
func (c *LusersCommand) NeedsRegistration() bool { return true }
func (c *LusersCommand) Usage() []string {
	return []string{"LUSERS", "Shows how many users, operators and channels the server has."}
}

func (c *LusersCommand) Execute(ctx *Context) {
	users := ctx.Registry.UserCount()
	conns := users
	if ctx.Stats != nil {
		conns = ctx.Stats.Connections()
	}
	unknown := max(conns-users, 0)

	ctx.Reply(girc.RPL_LUSERCLIENT, fmt.Sprintf("There are %d users and 0 services on 1 servers", users))
	ctx.Reply(girc.RPL_LUSEROP, strconv.Itoa(ctx.Registry.OperatorCount()), "operator(s) online")
	ctx.Reply(girc.RPL_LUSERUNKNOWN, strconv.Itoa(unknown), "unknown connection(s)")
	ctx.Reply(girc.RPL_LUSERCHANNELS, strconv.Itoa(ctx.Registry.ChannelCount()), "channels formed")
	ctx.Reply(girc.RPL_LUSERME, fmt.Sprintf("I have %d clients and 0 servers", conns))
}

// InfoCommand describes the server.
type InfoCommand struct{}

func (c *InfoCommand) Name() string            { return girc.INFO }
func (c *InfoCommand) NeedsRegistration() bool { return true }
func (c *InfoCommand) Usage() []string {
	return []string{"INFO", "Describes this server."}
}

func (c *InfoCommand) Execute(ctx *Context) {
	ctx.Reply(girc.RPL_INFO, fmt.Sprintf("%s version %s", ctx.ServerName(), ctx.Version))
	for _, part := range irc.Wrap(ctx.Config.Server.Info, motdWidth) {
		if part != "" {
			ctx.Reply(girc.RPL_INFO, part)
		}
	}
	ctx.Reply(girc.RPL_INFO, "Online since "+ctx.Started.Format(time.RFC1123))
	ctx.Reply(girc.RPL_ENDOFINFO, "End of INFO list")
}

// HelpCommand lists commands or shows the usage of one.
type HelpCommand struct {
	registry *Registry
}

// NewHelpCommand creates a help command that can list registered commands
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{registry: registry}
}

func (c *HelpCommand) Name() string            { return cmdHelp }
func (c *HelpCommand) NeedsRegistration() bool { return true }
func (c *HelpCommand) Usage() []string {
	return []string{"HELP [<command>]", "Lists the supported commands, or explains one of them."}
}

func (c *HelpCommand) Execute(ctx *Context) {
	subject := strings.ToUpper(ctx.Msg.Param(0))
	if subject == "" {
		var names []string
		for _, cmd := range c.registry.All() {
			names = append(names, cmd.Name())
		}
		ctx.Reply(rplHelpStart, "index", "** Help system **")
		ctx.Reply(rplHelpTxt, "index", "Try HELP <command> for specific help. Supported commands:")
		for _, part := range irc.Wrap(strings.Join(names, " "), motdWidth) {
			ctx.Reply(rplHelpTxt, "index", part)
		}
		ctx.Reply(rplEndOfHelp, "index", "End of /HELP")
		return
	}

	cmd, ok := c.registry.Get(subject)
	if !ok {
		ctx.Reply(errHelpNotFound, subject, "No help available on this topic")
		return
	}
	ctx.Reply(rplHelpStart, subject, fmt.Sprintf("** The %s command **", subject))
	for _, line := range cmd.Usage() {
		ctx.Reply(rplHelpTxt, subject, line)
	}
	ctx.Reply(rplEndOfHelp, subject, "End of /HELP")
}
