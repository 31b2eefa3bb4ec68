package authz

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/stanstork/medequip-events/internal/models"
)

// JWTMiddleware authenticates bearer tokens signed with the shared HMAC
// secret. The "sub" claim becomes the acting user; "roles" (or a single
// "role") carries the user's roles.
func JWTMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}
			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}
			userID, _ := claims["sub"].(string)
			if userID == "" {
				http.Error(w, "Missing token claim", http.StatusUnauthorized)
				return
			}
			roles, ok := rolesFromClaims(claims)
			if !ok {
				http.Error(w, "Missing role claim", http.StatusUnauthorized)
				return
			}
			name, _ := claims["name"].(string)
			ctx := WithIdentity(r.Context(), userID, name, roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rolesFromClaims(claims jwt.MapClaims) ([]models.UserRole, bool) {
	var raw []string
	switch v := claims["roles"].(type) {
	case []interface{}:
		for _, val := range v {
			str, ok := val.(string)
			if !ok {
				return nil, false
			}
			raw = append(raw, str)
		}
	case []string:
		raw = v
	case string:
		raw = []string{v}
	case nil:
		if single, ok := claims["role"].(string); ok && single != "" {
			raw = []string{single}
		}
	default:
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}

	roles := make([]models.UserRole, 0, len(raw))
	for _, str := range raw {
		role := models.UserRole(strings.ToLower(strings.TrimSpace(str)))
		if !models.IsValidRole(role) {
			return nil, false
		}
		roles = append(roles, role)
	}
	return roles, true
}
