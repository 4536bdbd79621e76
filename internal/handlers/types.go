package handlers

import (
	"context"
	"log"

	"signaler-bot/internal/access"
	"signaler-bot/internal/database/models"
	"signaler-bot/internal/gate"
	"signaler-bot/internal/notify"
	telegoapi "signaler-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Request is one authorized command invocation.
type Request struct {
	ChatID    int64
	Sender    telego.User
	Args      string
	Localizer *i18n.Localizer
	// User is the sender's record as left by the gate.
	User *models.User
	// Origin is set when the command came from an owner notification button.
	Origin     *notify.MessageRef
	OriginText string
	// Outcome is the reply text, used to annotate Origin.
	Outcome string
	handled bool
}

// Command maps a command name to its handler and access level.
type Command struct {
	Command     string                                // The command string (e.g., "start").
	Description string                                // Message ID of the /help description.
	Level       gate.Level                            // Minimum classification required.
	Lenient     bool                                  // Cooldown violations do not escalate.
	Handler     func(context.Context, *Request) error // The function to execute once the gate accepts.
}

// MessageHandler routes commands and button presses through the command gate.
type MessageHandler struct {
	bot       telegoapi.BotAPI
	messenger notify.Messenger
	access    *access.Service
	gate      *gate.Gate
	notifier  AccessRequestNotifier
	commands  []Command
}

// NewMessageHandler creates a handler and defines the available commands.
func NewMessageHandler(
	bot telegoapi.BotAPI,
	messenger notify.Messenger,
	svc *access.Service,
	g *gate.Gate,
	notifier AccessRequestNotifier,
) *MessageHandler {
	if bot == nil || messenger == nil || svc == nil || g == nil {
		log.Fatal("MessageHandler: bot, messenger, access service and gate are required")
	}
	h := &MessageHandler{
		bot:       bot,
		messenger: messenger,
		access:    svc,
		gate:      g,
		notifier:  notifier,
	}
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Level: gate.Public, Handler: h.HandleStart},
		{Command: "help", Description: "CmdHelpDesc", Level: gate.Public, Lenient: true, Handler: h.HandleHelp},
		{Command: "demand", Description: "CmdDemandDesc", Level: gate.Public, Handler: h.HandleDemand},
		{Command: "whoami", Description: "CmdWhoamiDesc", Level: gate.Public, Handler: h.HandleWhoami},
		{Command: "ping", Description: "CmdPingDesc", Level: gate.ApprovedOnly, Handler: h.HandlePing},
		{Command: "approve", Description: "CmdApproveDesc", Level: gate.OwnerOnly, Handler: h.HandleApprove},
		{Command: "deny", Description: "CmdDenyDesc", Level: gate.OwnerOnly, Handler: h.HandleDeny},
		{Command: "setowner", Description: "CmdSetOwnerDesc", Level: gate.OwnerOnly, Handler: h.HandleSetOwner},
		{Command: "unsetowner", Description: "CmdUnsetOwnerDesc", Level: gate.OwnerOnly, Handler: h.HandleUnsetOwner},
		{Command: "whois", Description: "CmdWhoisDesc", Level: gate.OwnerOnly, Handler: h.HandleWhois},
		{Command: "users", Description: "CmdUsersDesc", Level: gate.OwnerOnly, Handler: h.HandleUsers},
		{Command: "delete", Description: "CmdDeleteDesc", Level: gate.OwnerOnly, Handler: h.HandleDelete},
	}
	return h
}

// GetCommand looks up a command by name.
func (h *MessageHandler) GetCommand(name string) (Command, bool) {
	for _, cmd := range h.commands {
		if cmd.Command == name {
			return cmd, true
		}
	}
	return Command{}, false
}

// Commands returns every registered command.
func (h *MessageHandler) Commands() []Command {
	return h.commands
}
