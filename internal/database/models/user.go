package models

import "time"

// User is the registry record kept for every sender the bot has seen.
type User struct {
	ID            string     `bson:"_id"`                       // Registry-assigned surrogate key
	ExternalID    int64      `bson:"external_id"`               // Telegram user ID, unique
	DisplayName   string     `bson:"display_name"`              // Last observed name
	IsOwner       bool       `bson:"is_owner"`                  // Owners imply IsAllowed
	IsAllowed     bool       `bson:"is_allowed"`                // May use non-owner commands
	HasDemanded   bool       `bson:"has_demanded"`              // Requested access since the last denial
	JoinDate      time.Time  `bson:"join_date"`                 // Set once on creation
	LastCommandAt *time.Time `bson:"last_command_at,omitempty"` // nil until the first command
	SpammerLevel  int        `bson:"spammer_level"`             // 0..4, written by the spam governor only
	Version       int64      `bson:"version"`                   // Bumped on every update
}

// Clone returns a deep copy so callers never share the LastCommandAt pointer.
func (u User) Clone() User {
	if u.LastCommandAt != nil {
		t := *u.LastCommandAt
		u.LastCommandAt = &t
	}
	return u
}
