// Package access resolves what an identity is allowed to do.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"parking-bot/internal/models"
	"parking-bot/internal/repository"
)

// Role orders the privilege levels
type Role int

const (
	RoleGuest Role = iota
	RoleResident
	RoleModerator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleResident:
		return "resident"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	default:
		return "guest"
	}
}

// Config is the fixed set of privileged identities read at startup
type Config struct {
	AdminIDs     []int64
	ModeratorIDs []int64
}

// UserLookup reads a user row
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// ModeratorLookup reads the persisted moderator set
type ModeratorLookup interface {
	IsModerator(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]*models.Moderator, error)
}

// Access is the resolved view of one identity
type Access struct {
	UserID      int64
	IsAdmin     bool
	IsModerator bool
	Status      models.UserStatus
	IsApproved  bool
}

// Role returns the highest role of the identity
func (a Access) Role() Role {
	switch {
	case a.IsAdmin:
		return RoleAdmin
	case a.IsModerator:
		return RoleModerator
	case a.IsApproved:
		return RoleResident
	default:
		return RoleGuest
	}
}

// IsStaff reports whether the identity reviews registrations
func (a Access) IsStaff() bool {
	return a.IsAdmin || a.IsModerator
}

// Resolver combines the static config with the store
type Resolver struct {
	admins     []int64
	moderators []int64
	users      UserLookup
	mods       ModeratorLookup
}

// New creates a resolver. The config slices are copied.
func New(cfg Config, users UserLookup, mods ModeratorLookup) *Resolver {
	return &Resolver{
		admins:     slices.Clone(cfg.AdminIDs),
		moderators: slices.Clone(cfg.ModeratorIDs),
		users:      users,
		mods:       mods,
	}
}

// IsAdmin reports whether id is a configured admin
func (r *Resolver) IsAdmin(id int64) bool {
	return slices.Contains(r.admins, id)
}

// Admins returns the configured admins
func (r *Resolver) Admins() []int64 {
	return slices.Clone(r.admins)
}

// Resolve computes the access of id. Identities without a user row get status new.
func (r *Resolver) Resolve(ctx context.Context, id int64) (Access, error) {
	acc := Access{
		UserID:  id,
		IsAdmin: r.IsAdmin(id),
		Status:  models.StatusNew,
	}

	acc.IsModerator = slices.Contains(r.moderators, id)
	if !acc.IsModerator && r.mods != nil {
		persisted, err := r.mods.IsModerator(ctx, id)
		if err != nil {
			return acc, fmt.Errorf("failed to resolve moderator: %w", err)
		}
		acc.IsModerator = persisted
	}

	user, err := r.users.GetByID(ctx, id)
	switch {
	case err == nil:
		acc.Status = user.Status
	case errors.Is(err, repository.ErrNotFound):
	default:
		return acc, fmt.Errorf("failed to resolve user: %w", err)
	}
	acc.IsApproved = acc.Status == models.StatusApproved
	return acc, nil
}

// StaffIDs returns admins, configured moderators and persisted moderators without duplicates
func (r *Resolver) StaffIDs(ctx context.Context) ([]int64, error) {
	ids := slices.Clone(r.admins)
	ids = append(ids, r.moderators...)
	if r.mods != nil {
		persisted, err := r.mods.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list moderators: %w", err)
		}
		for _, m := range persisted {
			ids = append(ids, m.TelegramID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
