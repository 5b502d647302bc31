package auth

import (
	"context"
	"errors"
	"fmt"

	"contest-platform/internal/apperr"
	"contest-platform/internal/models"
	"contest-platform/internal/store"
)

// RoleStore resolves the role of a principal.
type RoleStore interface {
	RoleOf(ctx context.Context, email string) (models.Role, error)
}

// UserRoles adapts a store.UserStore. A missing user record means RoleUser.
type UserRoles struct {
	Users store.UserStore
}

func (r UserRoles) RoleOf(ctx context.Context, email string) (models.Role, error) {
	u, err := r.Users.GetUser(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.RoleUser, nil
	}
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// RequireRole fails with apperr.ErrForbidden unless principal holds one of allowed.
func RequireRole(ctx context.Context, roles RoleStore, principal string, allowed ...models.Role) (models.Role, error) {
	if principal == "" {
		return "", fmt.Errorf("%w: no principal", apperr.ErrAuth)
	}
	role, err := roles.RoleOf(ctx, principal)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if role == a {
			return role, nil
		}
	}
	return role, fmt.Errorf("%w: role %q may not perform this action", apperr.ErrForbidden, role)
}
