package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleViewer can read the event feeds and subscribe to the live stream.
	RoleViewer = "viewer"
	// RoleOperator can additionally hit operational endpoints.
	RoleOperator = "operator"
	// RoleAdmin bypasses all role checks.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	default:
		return false
	}
}
