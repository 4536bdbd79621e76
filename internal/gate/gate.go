// Package gate authorizes every inbound command: rate limiting first, then
// the access level check.
package gate

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"signaler-bot/internal/access"
	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"
	"signaler-bot/internal/keylock"
	"signaler-bot/internal/metrics"
	"signaler-bot/internal/spam"
)

// Level is the minimum classification a command requires.
type Level int

const (
	Public Level = iota
	ApprovedOnly
	OwnerOnly
)

// Command describes how the gate treats one command name.
type Command struct {
	Name  string
	Level Level
	// Lenient commands are still rate limited but violations do not raise
	// the spam level.
	Lenient bool
}

// Decision is the gate's verdict kind.
type Decision int

const (
	Accept Decision = iota
	RejectCooldown
	RejectUnauthorized
	RejectSpamLockout
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectCooldown:
		return "cooldown"
	case RejectUnauthorized:
		return "unauthorized"
	case RejectSpamLockout:
		return "spam_lockout"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of Authorize.
type Verdict struct {
	Decision  Decision
	Remaining time.Duration
	// User is the sender's record after the gate's own update.
	User *models.User
}

// RemainingSeconds rounds the cooldown up to whole seconds.
func (v Verdict) RemainingSeconds() int {
	return int(math.Ceil(v.Remaining.Seconds()))
}

// Sender identifies who issued a command.
type Sender struct {
	ID          int64
	DisplayName string
}

// LockoutNotifier is told once when a sender enters spam lockout.
type LockoutNotifier interface {
	NotifySpamLockout(ctx context.Context, offender models.User) error
}

// Gate composes the spam governor and the access check.
type Gate struct {
	access   *access.Service
	governor *spam.Governor
	notifier LockoutNotifier
	locks    *keylock.Locker
	now      func() time.Time
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a gate. notifier may be nil.
func New(svc *access.Service, governor *spam.Governor, notifier LockoutNotifier, opts ...Option) *Gate {
	if svc == nil || governor == nil {
		log.Fatal("Command Gate: access service and governor are required")
	}
	g := &Gate{
		access:   svc,
		governor: governor,
		notifier: notifier,
		locks:    keylock.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize runs the gate for one command. Errors mean the registry failed
// and the command must be treated as rejected.
func (g *Gate) Authorize(ctx context.Context, sender Sender, cmd Command) (Verdict, error) {
	unlock := g.locks.Lock(sender.ID)
	defer unlock()

	repo := g.access.Repository()
	if _, err := database.EnsureUser(ctx, repo, sender.ID, sender.DisplayName); err != nil {
		return Verdict{}, fmt.Errorf("gate %s: %w", cmd.Name, err)
	}

	var sv spam.Verdict
	now := g.now().UTC()
	user, err := repo.UpdateUser(ctx, sender.ID, g.governor.Mutation(now, !cmd.Lenient, &sv))
	if err != nil {
		return Verdict{}, fmt.Errorf("gate %s: %w", cmd.Name, err)
	}

	if sv.Released {
		log.Printf("[Gate Cmd:%s User:%d] Re-approved user released from spam lockout", cmd.Name, sender.ID)
	}

	switch sv.Decision {
	case spam.RejectLockout:
		if sv.LockedOut {
			metrics.SpamLockouts.Inc()
			log.Printf("[Gate Cmd:%s User:%d] Spam lockout: access revoked", cmd.Name, sender.ID)
			if g.notifier != nil {
				if nerr := g.notifier.NotifySpamLockout(ctx, *user); nerr != nil {
					log.Printf("[Gate Cmd:%s User:%d] Failed to notify owners about lockout: %v", cmd.Name, sender.ID, nerr)
				}
			}
		}
		return g.verdict(cmd, Verdict{Decision: RejectSpamLockout, User: user}), nil
	case spam.RejectCooldown:
		return g.verdict(cmd, Verdict{Decision: RejectCooldown, Remaining: sv.Remaining, User: user}), nil
	}

	allowed, err := g.permitted(ctx, sender.ID, user, cmd)
	if err != nil {
		return Verdict{}, fmt.Errorf("gate %s: %w", cmd.Name, err)
	}
	if !allowed {
		return g.verdict(cmd, Verdict{Decision: RejectUnauthorized, User: user}), nil
	}
	return g.verdict(cmd, Verdict{Decision: Accept, User: user}), nil
}

func (g *Gate) permitted(ctx context.Context, senderID int64, user *models.User, cmd Command) (bool, error) {
	switch cmd.Level {
	case OwnerOnly:
		return g.access.RequireOwner(ctx, senderID, cmd.Name)
	case ApprovedOnly:
		class := access.Classify(*user)
		return class == access.ClassApproved || class == access.ClassOwner, nil
	default:
		return true, nil
	}
}

func (g *Gate) verdict(cmd Command, v Verdict) Verdict {
	metrics.GateDecisions.WithLabelValues(v.Decision.String(), cmd.Name).Inc()
	if v.Decision != Accept {
		log.Printf("[Gate Cmd:%s User:%d] Rejected: %s", cmd.Name, v.User.ExternalID, v.Decision)
	}
	return v
}
