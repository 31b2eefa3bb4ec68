package recipients

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/repository"
)

// Directory is the subset of the user directory the resolver needs.
type Directory interface {
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	ListActiveByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error)
	ListActiveByScope(ctx context.Context, serviceID, areaID string) ([]models.User, error)
}

var (
	assigneeKeys = []string{"assigned_to", "assigned_user_id", "technician_id"}
	creatorKeys  = []string{"created_by", "reported_by"}
	cohortRoles  = []models.UserRole{models.RoleAdministrator, models.RoleSupervisor}
)

// Resolver computes who is notified about an envelope. It queries the
// directory on every call.
type Resolver struct {
	directory Directory
	logger    zerolog.Logger
}

func NewResolver(directory Directory, logger zerolog.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		logger:    logger.With().Str("component", "recipient_resolver").Logger(),
	}
}

// Resolve returns the deduplicated recipients in precedence order: assignee,
// creator, administrator/supervisor cohort for elevated or security-sensitive
// envelopes, then users scoped to the subject's service or area.
func (r *Resolver) Resolve(ctx context.Context, env event.Envelope) ([]models.User, error) {
	set := newOrderedSet()

	for _, id := range []string{firstKey(env.Payload, assigneeKeys), firstKey(env.Payload, creatorKeys)} {
		if id == "" || set.has(id) {
			continue
		}
		user, err := r.directory.GetUserByID(ctx, id)
		if errors.Is(err, repository.ErrUserNotFound) {
			r.logger.Debug().Str("user_id", id).Str("envelope_id", env.ID).Msg("explicit recipient not found")
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "load user %s", id)
		}
		if !user.IsActive {
			continue
		}
		set.add(user)
	}

	if env.Priority.Elevated() || env.IsSecuritySensitive() {
		users, err := r.directory.ListActiveByRoles(ctx, cohortRoles)
		if err != nil {
			return nil, errors.Wrap(err, "list role cohort")
		}
		set.add(users...)
	}

	if scope := scopeOf(env); !scope.Empty() {
		users, err := r.directory.ListActiveByScope(ctx, scope.ServiceID, scope.AreaID)
		if err != nil {
			return nil, errors.Wrap(err, "list scoped users")
		}
		set.add(users...)
	}

	return set.users, nil
}

func scopeOf(env event.Envelope) event.Scope {
	scope := event.ScopeOf(env.Subject)
	if scope.Empty() {
		scope = event.Scope{
			ServiceID: env.Payload.String("service_id"),
			AreaID:    env.Payload.String("area_id"),
		}
	}
	return scope
}

func firstKey(p event.Payload, keys []string) string {
	for _, k := range keys {
		if v := p.String(k); v != "" {
			return v
		}
	}
	return ""
}

type orderedSet struct {
	seen  map[string]struct{}
	users []models.User
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *orderedSet) add(users ...models.User) {
	for _, u := range users {
		if !u.IsActive || s.has(u.ID) {
			continue
		}
		s.seen[u.ID] = struct{}{}
		s.users = append(s.users, u)
	}
}
