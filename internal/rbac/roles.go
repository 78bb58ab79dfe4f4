package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleOperator can inspect delivery state and requeue work.
	RoleOperator = "operator"
	// RoleAdmin additionally manages configuration and bypasses role checks.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
