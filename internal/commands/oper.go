package commands

import (
	"fmt"

	"github.com/lrstanley/girc"
	"golang.org/x/crypto/bcrypt"
)

// OperCommand grants server operator status.
type OperCommand struct{}

func (c *OperCommand) Name() string            { return girc.OPER }
func (c *OperCommand) NeedsRegistration() bool { return true }
func (c *OperCommand) Usage() []string {
	return []string{"OPER <name> <password>", "Authenticates as a server operator."}
}

func (c *OperCommand) Execute(ctx *Context) {
	name := ctx.Msg.Param(0)
	password, ok := ctx.Msg.Body(1)
	if name == "" || !ok {
		ctx.needMoreParams()
		return
	}

	var hash string
	for _, op := range ctx.Config.Opers {
		if op.Name == name {
			hash = op.Hash
			break
		}
	}
	if hash == "" {
		ctx.Reply(girc.ERR_NOOPERHOST, "No O-lines for your host")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		ctx.Log.Warnw("Failed OPER attempt", "name", name)
		ctx.Reply(girc.ERR_PASSWDMISMATCH, "Password incorrect")
		return
	}

	ctx.User.Operator = true
	ctx.Log.Infow("Operator authenticated", "name", name)
	ctx.Reply(girc.RPL_YOUREOPER, "You are now an IRC operator")
}

// KillCommand lets an operator disconnect a user.
type KillCommand struct{}

func (c *KillCommand) Name() string            { return girc.KILL }
func (c *KillCommand) NeedsRegistration() bool { return true }
func (c *KillCommand) Usage() []string {
	return []string{"KILL <nick> :<reason>", "Disconnects a user. Operators only."}
}

func (c *KillCommand) Execute(ctx *Context) {
	if !ctx.User.Operator {
		ctx.Reply(girc.ERR_NOPRIVILEGES, "Permission Denied- You're not an IRC operator")
		return
	}
	nick := ctx.Msg.Param(0)
	if nick == "" {
		ctx.needMoreParams()
		return
	}
	target := ctx.Registry.FindUserByNick(nick)
	if target == nil {
		ctx.Reply(girc.ERR_NOSUCHNICK, nick, "No such nick/channel")
		return
	}

	reason, _ := ctx.Msg.Body(1)
	if reason == "" {
		reason = "No reason given"
	}
	quit := fmt.Sprintf("Killed (%s (%s))", ctx.User.Nick, reason)
	target.Send(ClosingLink(target.Hostname, quit))
	target.Quit(quit)
	ctx.Log.Infow("User killed", "target", target.Nick, "reason", reason)
}
