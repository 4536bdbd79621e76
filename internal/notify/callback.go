package notify

import (
	"fmt"
	"strconv"
	"strings"
)

// CallbackPrefix marks inline buttons that drive the approval workflow.
const CallbackPrefix = "access"

// Button actions. Each maps to the owner command of the same name.
const (
	ActionApprove = "approve"
	ActionDeny    = "deny"
	ActionWhois   = "whois"
)

// CallbackData encodes a button press as "access:<action>:<id>".
func CallbackData(action string, targetID int64) string {
	return fmt.Sprintf("%s:%s:%d", CallbackPrefix, action, targetID)
}

// ParseCallbackData decodes data produced by CallbackData.
func ParseCallbackData(data string) (action string, targetID int64, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != CallbackPrefix {
		return "", 0, false
	}
	switch parts[1] {
	case ActionApprove, ActionDeny, ActionWhois:
	default:
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[1], id, true
}
