package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signaler-bot/internal/access"
	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"
	"signaler-bot/internal/locales"
)

// workflowOp is one of the owner workflow operations of access.Service.
type workflowOp func(ctx context.Context, ownerID, targetID int64) (access.Result, *models.User, error)

// replies maps workflow results to message IDs for one command.
type replies map[access.Result]string

// commonReplies cover results every owner command can produce.
var commonReplies = replies{
	access.ResultNotFound:     "MsgTargetNotFound",
	access.ResultNotPermitted: "MsgNotPermitted",
	access.ResultLastOwner:    "MsgLastOwner",
}

// HandleApprove grants the target access and tells them.
func (h *MessageHandler) HandleApprove(ctx context.Context, req *Request) error {
	return h.runWorkflow(ctx, req, "approve", h.access.Approve, replies{
		access.ResultOK:              "MsgApproved",
		access.ResultAlreadyApproved: "MsgAlreadyApproved",
	}, "MsgYouWereApproved")
}

// HandleDeny revokes the target's access and tells them.
func (h *MessageHandler) HandleDeny(ctx context.Context, req *Request) error {
	return h.runWorkflow(ctx, req, "deny", h.access.Deny, replies{
		access.ResultOK:          "MsgDenied",
		access.ResultNotApproved: "MsgNotApproved",
	}, "MsgYouWereDenied")
}

// HandleSetOwner promotes an approved target.
func (h *MessageHandler) HandleSetOwner(ctx context.Context, req *Request) error {
	return h.runWorkflow(ctx, req, "setowner", h.access.SetOwner, replies{
		access.ResultOK:           "MsgOwnerSet",
		access.ResultAlreadyOwner: "MsgAlreadyOwner",
		access.ResultNotApproved:  "MsgNotApprovedForOwner",
	}, "")
}

// HandleUnsetOwner demotes an owner, who then has to request access again.
func (h *MessageHandler) HandleUnsetOwner(ctx context.Context, req *Request) error {
	return h.runWorkflow(ctx, req, "unsetowner", h.access.UnsetOwner, replies{
		access.ResultOK:       "MsgOwnerUnset",
		access.ResultNotOwner: "MsgNotOwner",
	}, "MsgYouWereDenied")
}

// HandleWhois shows the target's record.
func (h *MessageHandler) HandleWhois(ctx context.Context, req *Request) error {
	targetID, ok, err := h.resolveTarget(ctx, req, "whois")
	if err != nil || !ok {
		return err
	}
	result, user, err := h.access.Whois(ctx, req.Sender.ID, targetID)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	if result != access.ResultOK {
		h.reply(ctx, req, commonReplies[result], targetData(req.Args, user, targetID), nil)
		return nil
	}

	lastCommand := locales.GetMessage(req.Localizer, "MsgNever", nil, nil)
	if user.LastCommandAt != nil {
		lastCommand = user.LastCommandAt.Format(time.DateTime)
	}
	h.reply(ctx, req, "MsgWhois", map[string]interface{}{
		"ID":          user.ExternalID,
		"Name":        user.DisplayName,
		"Class":       className(req.Localizer, access.Classify(*user)),
		"Level":       user.SpammerLevel,
		"JoinDate":    user.JoinDate.Format(time.DateTime),
		"LastCommand": lastCommand,
	}, nil)
	return nil
}

// HandleUsers lists every record in the registry.
func (h *MessageHandler) HandleUsers(ctx context.Context, req *Request) error {
	result, users, err := h.access.ListUsers(ctx, req.Sender.ID)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	if result != access.ResultOK {
		h.reply(ctx, req, commonReplies[result], nil, nil)
		return nil
	}

	count := len(users)
	var text strings.Builder
	text.WriteString(locales.GetMessage(req.Localizer, "MsgUsersHeader", map[string]interface{}{"Count": count}, &count))
	for _, u := range users {
		text.WriteString("\n")
		text.WriteString(locales.GetMessage(req.Localizer, "MsgUsersLine", map[string]interface{}{
			"ID":    u.ExternalID,
			"Name":  u.DisplayName,
			"Class": className(req.Localizer, access.Classify(u)),
		}, nil))
	}
	h.send(ctx, req, text.String())
	return nil
}

// HandleDelete removes a non-owner record.
func (h *MessageHandler) HandleDelete(ctx context.Context, req *Request) error {
	targetID, ok, err := h.resolveTarget(ctx, req, "delete")
	if err != nil || !ok {
		return err
	}
	result, err := h.access.Delete(ctx, req.Sender.ID, targetID)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	switch result {
	case access.ResultOK:
		h.reply(ctx, req, "MsgUserDeleted", map[string]interface{}{"ID": targetID}, nil)
	case access.ResultOwnerProtected:
		h.reply(ctx, req, "MsgDeleteOwnerRefused", nil, nil)
	default:
		h.reply(ctx, req, commonReplies[result], targetData(req.Args, nil, targetID), nil)
	}
	return nil
}

// runWorkflow resolves the target, runs op and reports the result. On
// success the target is sent notifyID, if set.
func (h *MessageHandler) runWorkflow(ctx context.Context, req *Request, command string, op workflowOp, own replies, notifyID string) error {
	targetID, ok, err := h.resolveTarget(ctx, req, command)
	if err != nil || !ok {
		return err
	}

	result, user, err := op(ctx, req.Sender.ID, targetID)
	if err != nil {
		return h.fail(ctx, req, err)
	}

	msgID, found := own[result]
	if !found {
		msgID, found = commonReplies[result]
	}
	if !found {
		return h.fail(ctx, req, fmt.Errorf("%s: unexpected result %s", command, result))
	}
	h.reply(ctx, req, msgID, targetData(req.Args, user, targetID), nil)

	if result == access.ResultOK && notifyID != "" && targetID != req.Sender.ID {
		h.notifyUser(ctx, targetID, notifyID)
	}
	return nil
}

// resolveTarget reads the target from the request arguments. ok is false when
// the user has already been told why there is no target.
func (h *MessageHandler) resolveTarget(ctx context.Context, req *Request, command string) (int64, bool, error) {
	if req.Args == "" {
		h.reply(ctx, req, "MsgUsage", map[string]interface{}{"Command": command}, nil)
		return 0, false, nil
	}
	targetID, err := h.access.ResolveTarget(ctx, req.Args)
	if errors.Is(err, database.ErrUserNotFound) {
		h.reply(ctx, req, "MsgTargetNotFound", map[string]interface{}{"Target": req.Args}, nil)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, h.fail(ctx, req, err)
	}
	return targetID, true, nil
}

func targetData(arg string, user *models.User, targetID int64) map[string]interface{} {
	data := map[string]interface{}{"ID": targetID, "Name": "", "Target": arg}
	if user != nil {
		data["Name"] = user.DisplayName
	}
	return data
}
