// Package spam rate-limits command issuance with an escalating cooldown ladder.
package spam

import (
	"fmt"
	"time"

	"signaler-bot/internal/access"
	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"
)

// DefaultCooldowns is the ladder indexed by spam level. The level one past
// the last entry is the lockout level.
var DefaultCooldowns = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	45 * time.Second,
	90 * time.Second,
}

// Decision is the governor's verdict on one command attempt.
type Decision int

const (
	Accept Decision = iota
	RejectCooldown
	RejectLockout
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectCooldown:
		return "reject_cooldown"
	case RejectLockout:
		return "reject_lockout"
	default:
		return "unknown"
	}
}

// Verdict describes one evaluation.
type Verdict struct {
	Decision Decision
	// Remaining is how long the sender must now stay quiet. Set for RejectCooldown.
	Remaining time.Duration
	// Level is the spam level after evaluation.
	Level int
	// LockedOut is true only for the attempt that entered the lockout level.
	LockedOut bool
	// Released is true when a re-approved user left the lockout level.
	Released bool
}

// Governor evaluates command attempts against the cooldown ladder.
type Governor struct {
	cooldowns []time.Duration
}

// NewGovernor creates a governor. An empty ladder falls back to DefaultCooldowns.
func NewGovernor(cooldowns []time.Duration) (*Governor, error) {
	if len(cooldowns) == 0 {
		cooldowns = DefaultCooldowns
	}
	for i, c := range cooldowns {
		if c < 0 {
			return nil, fmt.Errorf("cooldown for level %d is negative: %v", i, c)
		}
	}
	ladder := make([]time.Duration, len(cooldowns))
	copy(ladder, cooldowns)
	return &Governor{cooldowns: ladder}, nil
}

// LockoutLevel is the level at which every command is refused.
func (g *Governor) LockoutLevel() int {
	return len(g.cooldowns)
}

// Cooldown returns the spacing required at level, or false at lockout.
func (g *Governor) Cooldown(level int) (time.Duration, bool) {
	if level < 0 || level >= len(g.cooldowns) {
		return 0, false
	}
	return g.cooldowns[level], true
}

// Evaluate applies one command attempt at now to u and reports the verdict.
// escalate controls whether a cooldown violation raises the spam level.
func (g *Governor) Evaluate(u *models.User, now time.Time, escalate bool) Verdict {
	lockout := g.LockoutLevel()

	if u.IsOwner {
		u.SpammerLevel = 0
		u.LastCommandAt = &now
		return Verdict{Decision: Accept}
	}

	if u.SpammerLevel >= lockout {
		// Lockout revokes access, so being allowed again means an owner
		// re-approved the user.
		if u.IsAllowed {
			u.SpammerLevel = 0
			u.LastCommandAt = &now
			return Verdict{Decision: Accept, Released: true}
		}
		return Verdict{Decision: RejectLockout, Level: u.SpammerLevel}
	}

	if u.LastCommandAt == nil {
		u.LastCommandAt = &now
		return Verdict{Decision: Accept, Level: u.SpammerLevel}
	}

	deadline := u.LastCommandAt.Add(g.cooldowns[u.SpammerLevel])
	// Every attempt counts as the latest one, accepted or not.
	u.LastCommandAt = &now

	if now.Before(deadline) {
		if escalate {
			u.SpammerLevel++
		}
		if u.SpammerLevel >= lockout {
			u.SpammerLevel = lockout
			access.Revoke(u)
			return Verdict{Decision: RejectLockout, Level: lockout, LockedOut: true}
		}
		return Verdict{
			Decision:  RejectCooldown,
			Remaining: g.cooldowns[u.SpammerLevel],
			Level:     u.SpammerLevel,
		}
	}

	u.SpammerLevel = 0
	return Verdict{Decision: Accept}
}

// Mutation wraps Evaluate as a registry update. Repeated lockout rejections
// change nothing and skip the write. out holds the verdict of the committed
// attempt.
func (g *Governor) Mutation(now time.Time, escalate bool, out *Verdict) database.UserMutation {
	return func(u *models.User) error {
		*out = g.Evaluate(u, now, escalate)
		if out.Decision == RejectLockout && !out.LockedOut {
			return database.ErrSkipUpdate
		}
		return nil
	}
}
