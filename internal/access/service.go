package access

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"
	"signaler-bot/internal/metrics"
)

// Service runs the approval workflow against the user registry.
type Service struct {
	repo database.UserRepository
	// ownersMu serializes demotions so two owners cannot remove each other
	// and leave the registry ownerless.
	ownersMu sync.Mutex
}

// NewService creates a workflow service over repo.
func NewService(repo database.UserRepository) *Service {
	if repo == nil {
		log.Fatal("Access Service: user repository is nil")
	}
	return &Service{repo: repo}
}

// Repository exposes the underlying registry.
func (s *Service) Repository() database.UserRepository {
	return s.repo
}

// RequireOwner reports whether callerID is an owner. Unknown callers are not
// owners. Only a store failure produces an error.
func (s *Service) RequireOwner(ctx context.Context, callerID int64, command string) (bool, error) {
	caller, err := s.repo.GetUser(ctx, callerID)
	if errors.Is(err, database.ErrUserNotFound) {
		log.Printf("[Access Cmd:%s User:%d] Unknown user attempted an owner command", command, callerID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check owner %d: %w", callerID, err)
	}
	if Classify(*caller) != ClassOwner {
		log.Printf("[Access Cmd:%s User:%d] Received unauthorized owner command", command, callerID)
		return false, nil
	}
	return true, nil
}

// Demand moves a Pending sender to AwaitingReview.
func (s *Service) Demand(ctx context.Context, senderID int64) (Result, *models.User, error) {
	result := ResultOK
	user, err := s.repo.UpdateUser(ctx, senderID, func(u *models.User) error {
		switch Classify(*u) {
		case ClassOwner, ClassApproved:
			result = ResultAlreadyApproved
			return database.ErrSkipUpdate
		case ClassAwaitingReview:
			result = ResultAlreadyRequested
			return database.ErrSkipUpdate
		}
		result = ResultOK
		u.HasDemanded = true
		return nil
	})
	return s.finish("demand", senderID, 0, result, user, err)
}

// Approve allows target. The caller must be an owner.
func (s *Service) Approve(ctx context.Context, ownerID, targetID int64) (Result, *models.User, error) {
	if res, err := s.checkOwner(ctx, ownerID, "approve"); res != ResultOK || err != nil {
		return s.finish("approve", targetID, ownerID, res, nil, err)
	}
	result := ResultOK
	user, err := s.repo.UpdateUser(ctx, targetID, func(u *models.User) error {
		if u.IsAllowed {
			result = ResultAlreadyApproved
			return database.ErrSkipUpdate
		}
		result = ResultOK
		u.IsAllowed = true
		return nil
	})
	return s.finish("approve", targetID, ownerID, result, user, err)
}

// Deny revokes target's access and clears their pending request. Denying an
// owner demotes them. A target that was never approved yields
// ResultNotApproved, though a pending request is still dismissed.
func (s *Service) Deny(ctx context.Context, ownerID, targetID int64) (Result, *models.User, error) {
	if res, err := s.checkOwner(ctx, ownerID, "deny"); res != ResultOK || err != nil {
		return s.finish("deny", targetID, ownerID, res, nil, err)
	}

	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()

	if res, err := s.guardLastOwner(ctx, targetID); res != ResultOK || err != nil {
		if err != nil {
			return s.finish("deny", targetID, ownerID, res, nil, err)
		}
		user, err := s.repo.UpdateUser(ctx, targetID, dismissDemand)
		return s.finish("deny", targetID, ownerID, res, user, err)
	}

	result := ResultOK
	user, err := s.repo.UpdateUser(ctx, targetID, func(u *models.User) error {
		switch {
		case u.IsOwner:
			result = ResultOK
			log.Printf("[Access Op:deny Owner:%d Target:%d] Demoting owner %q", ownerID, targetID, u.DisplayName)
		case u.IsAllowed:
			result = ResultOK
		default:
			result = ResultNotApproved
			if !u.HasDemanded {
				return database.ErrSkipUpdate
			}
		}
		Revoke(u)
		return nil
	})
	return s.finish("deny", targetID, ownerID, result, user, err)
}

// SetOwner promotes an approved target to owner.
func (s *Service) SetOwner(ctx context.Context, ownerID, targetID int64) (Result, *models.User, error) {
	if res, err := s.checkOwner(ctx, ownerID, "setowner"); res != ResultOK || err != nil {
		return s.finish("setowner", targetID, ownerID, res, nil, err)
	}
	result := ResultOK
	user, err := s.repo.UpdateUser(ctx, targetID, func(u *models.User) error {
		switch Classify(*u) {
		case ClassOwner:
			result = ResultAlreadyOwner
			return database.ErrSkipUpdate
		case ClassApproved:
			result = ResultOK
			Promote(u)
			return nil
		default:
			result = ResultNotApproved
			return database.ErrSkipUpdate
		}
	})
	return s.finish("setowner", targetID, ownerID, result, user, err)
}

// UnsetOwner demotes an owner through the deny mutation, so the demoted user
// has to request access again.
func (s *Service) UnsetOwner(ctx context.Context, ownerID, targetID int64) (Result, *models.User, error) {
	if res, err := s.checkOwner(ctx, ownerID, "unsetowner"); res != ResultOK || err != nil {
		return s.finish("unsetowner", targetID, ownerID, res, nil, err)
	}

	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()

	if res, err := s.guardLastOwner(ctx, targetID); res != ResultOK || err != nil {
		if err != nil {
			return s.finish("unsetowner", targetID, ownerID, res, nil, err)
		}
		user, err := s.repo.UpdateUser(ctx, targetID, dismissDemand)
		return s.finish("unsetowner", targetID, ownerID, res, user, err)
	}

	result := ResultOK
	user, err := s.repo.UpdateUser(ctx, targetID, func(u *models.User) error {
		if !u.IsOwner {
			result = ResultNotOwner
			return database.ErrSkipUpdate
		}
		result = ResultOK
		log.Printf("[Access Op:unsetowner Owner:%d Target:%d] Demoting owner %q", ownerID, targetID, u.DisplayName)
		Revoke(u)
		return nil
	})
	return s.finish("unsetowner", targetID, ownerID, result, user, err)
}

// Whois returns the target record to an owner.
func (s *Service) Whois(ctx context.Context, ownerID, targetID int64) (Result, *models.User, error) {
	if res, err := s.checkOwner(ctx, ownerID, "whois"); res != ResultOK || err != nil {
		return res, nil, err
	}
	user, err := s.repo.GetUser(ctx, targetID)
	if errors.Is(err, database.ErrUserNotFound) {
		return ResultNotFound, nil, nil
	}
	if err != nil {
		return ResultOK, nil, fmt.Errorf("failed to look up user %d: %w", targetID, err)
	}
	return ResultOK, user, nil
}

// ListUsers returns every registry record to an owner.
func (s *Service) ListUsers(ctx context.Context, ownerID int64) (Result, []models.User, error) {
	if res, err := s.checkOwner(ctx, ownerID, "users"); res != ResultOK || err != nil {
		return res, nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return ResultOK, nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ResultOK, users, nil
}

// Delete removes target from the registry. Owners cannot be deleted; demote
// them first.
func (s *Service) Delete(ctx context.Context, ownerID, targetID int64) (Result, error) {
	if res, err := s.checkOwner(ctx, ownerID, "delete"); res != ResultOK || err != nil {
		return res, err
	}
	target, err := s.repo.GetUser(ctx, targetID)
	if errors.Is(err, database.ErrUserNotFound) {
		return ResultNotFound, nil
	}
	if err != nil {
		return ResultOK, fmt.Errorf("failed to look up user %d: %w", targetID, err)
	}
	if target.IsOwner {
		return ResultOwnerProtected, nil
	}
	err = s.repo.DeleteUser(ctx, targetID)
	if errors.Is(err, database.ErrUserNotFound) {
		return ResultNotFound, nil
	}
	if err != nil {
		return ResultOK, fmt.Errorf("failed to delete user %d: %w", targetID, err)
	}
	log.Printf("[Access Op:delete Owner:%d Target:%d] Deleted user %q", ownerID, targetID, target.DisplayName)
	metrics.WorkflowResults.WithLabelValues("delete", ResultOK.String()).Inc()
	return ResultOK, nil
}

// MainOwner returns the oldest owner.
func (s *Service) MainOwner(ctx context.Context) (*models.User, error) {
	owners, err := s.repo.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	if len(owners) == 0 {
		return nil, database.ErrUserNotFound
	}
	return &owners[0], nil
}

// ResolveTarget turns a command argument into an external ID. Bare numbers
// are IDs. Anything else is looked up by display name first, and only an
// unknown name in the "id: 42" form falls back to the ID it carries.
func (s *Service) ResolveTarget(ctx context.Context, arg string) (int64, error) {
	if digitsRe.MatchString(strings.TrimSpace(arg)) {
		if id, ok := ExtractUserID(arg); ok {
			return id, nil
		}
	}
	user, err := s.repo.GetUserByName(ctx, TrimMention(arg))
	if err == nil {
		return user.ExternalID, nil
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return 0, err
	}
	if id, ok := ExtractUserID(arg); ok {
		return id, nil
	}
	return 0, err
}

func (s *Service) checkOwner(ctx context.Context, ownerID int64, command string) (Result, error) {
	ok, err := s.RequireOwner(ctx, ownerID, command)
	if err != nil {
		return ResultOK, err
	}
	if !ok {
		return ResultNotPermitted, nil
	}
	return ResultOK, nil
}

// dismissDemand clears a pending request and leaves access untouched.
func dismissDemand(u *models.User) error {
	if !u.HasDemanded {
		return database.ErrSkipUpdate
	}
	u.HasDemanded = false
	return nil
}

// guardLastOwner refuses to demote the only owner. Callers hold ownersMu.
func (s *Service) guardLastOwner(ctx context.Context, targetID int64) (Result, error) {
	owners, err := s.repo.ListOwners(ctx)
	if err != nil {
		return ResultOK, fmt.Errorf("failed to list owners: %w", err)
	}
	if len(owners) == 1 && owners[0].ExternalID == targetID {
		return ResultLastOwner, nil
	}
	return ResultOK, nil
}

// finish maps ErrUserNotFound to ResultNotFound, wraps store failures and
// records the outcome.
func (s *Service) finish(op string, targetID, ownerID int64, result Result, user *models.User, err error) (Result, *models.User, error) {
	if errors.Is(err, database.ErrUserNotFound) {
		result, user, err = ResultNotFound, nil, nil
	}
	if err != nil {
		return result, nil, fmt.Errorf("%s user %d: %w", op, targetID, err)
	}
	metrics.WorkflowResults.WithLabelValues(op, result.String()).Inc()
	if result == ResultOK && ownerID != 0 {
		log.Printf("[Access Op:%s Owner:%d Target:%d] Done", op, ownerID, targetID)
	}
	return result, user, nil
}
