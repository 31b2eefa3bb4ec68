package models

type UserRole string

const (
	RoleAdministrator UserRole = "administrator"
	RoleSupervisor    UserRole = "supervisor"
	RoleTechnician    UserRole = "technician"
	RoleOperator      UserRole = "operator"
)

// User is the directory view of an account used for notification fan-out.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"is_active"`
	Roles     []UserRole `json:"roles"`
	ServiceID *string    `json:"service_id,omitempty"`
	AreaID    *string    `json:"area_id,omitempty"`
}

func (u User) HasRole(roles ...UserRole) bool {
	for _, held := range u.Roles {
		for _, want := range roles {
			if held == want {
				return true
			}
		}
	}
	return false
}

func IsValidRole(role UserRole) bool {
	switch role {
	case RoleAdministrator, RoleSupervisor, RoleTechnician, RoleOperator:
		return true
	}
	return false
}
