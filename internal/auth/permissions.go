package auth

import "errors"

// RBAC роли и разрешения
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleMaster = "master"
)

// Permissions список разрешений
var Permissions = map[string][]string{
	RoleMaster: {
		"crm:all",
		"accounts:read",
		"accounts:manage",
		"subscriptions:manage",
		"system:admin",
	},
	RoleAdmin: {
		"crm:all",
		"accounts:read",
		"subscriptions:manage",
	},
	RoleUser: {
		"crm:own",
		"accounts:read:self",
	},
}

// HasPermission проверяет есть ли у роли указанное разрешение
func HasPermission(role, permission string) bool {
	permissions, exists := Permissions[role]
	if !exists {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CanAccessAnyTenant - админ и мастер видят все субаккаунты
func CanAccessAnyTenant(role string) bool {
	return HasPermission(role, "crm:all")
}

// IsAdmin проверяет является ли пользователь администратором
func IsAdmin(claims *Claims) bool {
	return claims.Role == RoleAdmin || claims.Role == RoleMaster
}

// ValidateRole проверяет валидность роли
func ValidateRole(role string) error {
	switch role {
	case RoleAdmin, RoleUser, RoleMaster:
		return nil
	default:
		return errors.New("invalid role")
	}
}
