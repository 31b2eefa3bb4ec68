package authz

import (
	"context"
	"net/http"

	"github.com/stanstork/medequip-events/internal/models"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userNameKey  contextKey = "user_name"
	userRolesKey contextKey = "user_roles"
)

// WithIdentity stores the authenticated user and roles on the context.
func WithIdentity(ctx context.Context, userID, name string, roles []models.UserRole) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	if name != "" {
		ctx = context.WithValue(ctx, userNameKey, name)
	}
	return context.WithValue(ctx, userRolesKey, roles)
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func UserNameFromRequest(r *http.Request) string {
	name, _ := r.Context().Value(userNameKey).(string)
	return name
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	roles, ok := r.Context().Value(userRolesKey).([]models.UserRole)
	if !ok || len(roles) == 0 {
		return nil, false
	}
	return roles, true
}
