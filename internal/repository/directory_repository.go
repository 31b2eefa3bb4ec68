package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/stanstork/medequip-events/internal/models"
)

// ErrUserNotFound is returned when a directory lookup matches no user.
var ErrUserNotFound = errors.New("user not found")

// DirectoryRepository answers role and scope membership questions against
// the application's users table. Results always reflect current state.
type DirectoryRepository interface {
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	ListActiveByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error)
	ListActiveByScope(ctx context.Context, serviceID, areaID string) ([]models.User, error)
}

type directoryRepository struct {
	db *sql.DB
}

func NewDirectoryRepository(db *sql.DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

const userColumns = `id, email, name, is_active, roles, service_id, area_id`

func (r *directoryRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM public.users WHERE id = $1 AND deleted_at IS NULL`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func (r *directoryRepository) ListActiveByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + userColumns + `
		FROM public.users
		WHERE is_active = TRUE AND deleted_at IS NULL AND roles && $1
		ORDER BY id ASC`
	return r.list(ctx, query, pq.Array(toStringSlice(roles)))
}

func (r *directoryRepository) ListActiveByScope(ctx context.Context, serviceID, areaID string) ([]models.User, error) {
	if serviceID == "" && areaID == "" {
		return nil, nil
	}
	query := `
		SELECT ` + userColumns + `
		FROM public.users
		WHERE is_active = TRUE AND deleted_at IS NULL
		  AND (($1 <> '' AND service_id = $1) OR ($2 <> '' AND area_id = $2))
		ORDER BY id ASC`
	return r.list(ctx, query, serviceID, areaID)
}

func (r *directoryRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (models.User, error) {
	var (
		user      models.User
		roles     pq.StringArray
		serviceID sql.NullString
		areaID    sql.NullString
	)
	if err := scanner.Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &roles, &serviceID, &areaID); err != nil {
		return models.User{}, err
	}
	user.Roles = toUserRoleSlice(roles)
	if serviceID.Valid {
		v := serviceID.String
		user.ServiceID = &v
	}
	if areaID.Valid {
		v := areaID.String
		user.AreaID = &v
	}
	return user, nil
}

func toStringSlice(roles []models.UserRole) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func toUserRoleSlice(values []string) []models.UserRole {
	out := make([]models.UserRole, 0, len(values))
	for _, v := range values {
		out = append(out, models.UserRole(v))
	}
	return out
}
