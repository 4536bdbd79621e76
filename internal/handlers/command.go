package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"signaler-bot/internal/access"
	"signaler-bot/internal/gate"
	"signaler-bot/internal/locales"

	"github.com/mymmrac/telego"
)

// HandleCommand parses a "/command args" message and dispatches it.
func (h *MessageHandler) HandleCommand(ctx context.Context, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	name, args := parseCommand(message.Text)
	req := &Request{
		ChatID:    message.Chat.ID,
		Sender:    *message.From,
		Args:      args,
		Localizer: h.getLocalizer(message.From),
	}
	return h.dispatch(ctx, name, req)
}

// dispatch runs the gate for name and invokes the handler on Accept.
// Unknown commands go through the gate too so they count against the sender.
func (h *MessageHandler) dispatch(ctx context.Context, name string, req *Request) error {
	logPrefix := fmt.Sprintf("[Cmd:%s User:%d]", name, req.Sender.ID)
	cmd, known := h.GetCommand(name)
	gateCmd := gate.Command{Name: name, Level: cmd.Level, Lenient: cmd.Lenient}
	if !known {
		gateCmd = gate.Command{Name: "unknown", Level: gate.Public}
	}

	verdict, err := h.gate.Authorize(ctx, gate.Sender{ID: req.Sender.ID, DisplayName: displayName(&req.Sender)}, gateCmd)
	if err != nil {
		return h.fail(ctx, req, fmt.Errorf("%s gate failed: %w", logPrefix, err))
	}
	req.User = verdict.User

	switch verdict.Decision {
	case gate.RejectCooldown:
		seconds := verdict.RemainingSeconds()
		h.reply(ctx, req, "MsgRejectCooldown", map[string]interface{}{"Seconds": seconds}, &seconds)
		return nil
	case gate.RejectUnauthorized:
		h.reply(ctx, req, "MsgRejectUnauthorized", nil, nil)
		return nil
	case gate.RejectSpamLockout:
		h.reply(ctx, req, "MsgRejectLockout", nil, nil)
		return nil
	}

	if !known {
		log.Printf("%s No handler found", logPrefix)
		h.reply(ctx, req, "MsgErrorUnknownCommand", nil, nil)
		return nil
	}
	req.handled = true
	return cmd.Handler(ctx, req)
}

// HandleStart greets the sender and names the main owner to contact.
func (h *MessageHandler) HandleStart(ctx context.Context, req *Request) error {
	name := displayName(&req.Sender)
	if access.Classify(*req.User) == access.ClassOwner {
		h.reply(ctx, req, "MsgStartOwner", map[string]interface{}{"Name": name}, nil)
		return nil
	}

	mainOwner, err := h.access.MainOwner(ctx)
	if err != nil {
		return h.fail(ctx, req, fmt.Errorf("failed to look up main owner: %w", err))
	}
	h.reply(ctx, req, "MsgStartUser", map[string]interface{}{
		"Name":      name,
		"MainOwner": mention(mainOwner.DisplayName, mainOwner.ExternalID),
	}, nil)
	return nil
}

// HandleHelp lists the commands the sender's class may use.
func (h *MessageHandler) HandleHelp(ctx context.Context, req *Request) error {
	class := access.Classify(*req.User)

	var helpText strings.Builder
	helpText.WriteString(locales.GetMessage(req.Localizer, "MsgHelpHeader", nil, nil) + "\n")
	for _, cmd := range h.commands {
		if !levelAllows(cmd.Level, class) {
			continue
		}
		desc := locales.GetMessage(req.Localizer, cmd.Description, nil, nil)
		helpText.WriteString(fmt.Sprintf("/%s - %s\n", cmd.Command, desc))
	}
	h.send(ctx, req, strings.TrimRight(helpText.String(), "\n"))
	return nil
}

// HandleDemand files an access request and notifies the owners.
func (h *MessageHandler) HandleDemand(ctx context.Context, req *Request) error {
	result, user, err := h.access.Demand(ctx, req.Sender.ID)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	switch result {
	case access.ResultOK:
		h.reply(ctx, req, "MsgDemandSent", nil, nil)
		if h.notifier != nil {
			if err := h.notifier.NotifyAccessRequest(ctx, *user); err != nil {
				log.Printf("[Cmd:demand User:%d] Failed to notify owners: %v", req.Sender.ID, err)
			}
		}
	case access.ResultAlreadyRequested:
		h.reply(ctx, req, "MsgDemandAlreadyRequested", nil, nil)
	case access.ResultAlreadyApproved:
		h.reply(ctx, req, "MsgDemandAlreadyApproved", nil, nil)
	default:
		h.reply(ctx, req, "MsgErrorGeneral", nil, nil)
	}
	return nil
}

// HandleWhoami shows the sender their own record.
func (h *MessageHandler) HandleWhoami(ctx context.Context, req *Request) error {
	u := req.User
	h.reply(ctx, req, "MsgWhoami", map[string]interface{}{
		"ID":    u.ExternalID,
		"Name":  u.DisplayName,
		"Class": className(req.Localizer, access.Classify(*u)),
		"Level": u.SpammerLevel,
	}, nil)
	return nil
}

// HandlePing answers approved users.
func (h *MessageHandler) HandlePing(ctx context.Context, req *Request) error {
	h.reply(ctx, req, "MsgPong", nil, nil)
	return nil
}

// SetupCommands registers the command list with Telegram.
func (h *MessageHandler) SetupCommands(ctx context.Context) error {
	if len(h.commands) == 0 {
		log.Println("No commands defined in handler, skipping SetMyCommands.")
		return nil
	}

	localizer := h.getLocalizer(nil)
	commands := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		commands = append(commands, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(localizer, cmd.Description, nil, nil),
		})
	}

	if err := h.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	log.Printf("Successfully set %d bot commands.", len(commands))
	return nil
}

// parseCommand splits "/cmd@bot a b" into "cmd" and "a b".
func parseCommand(text string) (name, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func levelAllows(level gate.Level, class access.Class) bool {
	switch level {
	case gate.OwnerOnly:
		return class == access.ClassOwner
	case gate.ApprovedOnly:
		return class == access.ClassOwner || class == access.ClassApproved
	default:
		return true
	}
}
