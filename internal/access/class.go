// Package access classifies registry users and runs the approval workflow.
package access

import "signaler-bot/internal/database/models"

// Class is the workflow state derived from a user's approval flags.
type Class int

const (
	ClassPending Class = iota
	ClassAwaitingReview
	ClassApproved
	ClassOwner
)

func (c Class) String() string {
	switch c {
	case ClassPending:
		return "pending"
	case ClassAwaitingReview:
		return "awaiting_review"
	case ClassApproved:
		return "approved"
	case ClassOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Classify maps (IsOwner, IsAllowed, HasDemanded) to a Class.
// No other field takes part.
func Classify(u models.User) Class {
	switch {
	case u.IsAllowed && u.IsOwner:
		return ClassOwner
	case u.IsAllowed:
		return ClassApproved
	case u.HasDemanded:
		return ClassAwaitingReview
	default:
		return ClassPending
	}
}

// Revoke is the deny mutation: the user drops back to Pending and may
// request access again.
func Revoke(u *models.User) {
	u.IsOwner = false
	u.IsAllowed = false
	u.HasDemanded = false
}

// Promote makes u an owner. Owners are always allowed.
func Promote(u *models.User) {
	u.IsOwner = true
	u.IsAllowed = true
}
