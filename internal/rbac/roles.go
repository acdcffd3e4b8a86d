package rbac

// Role names issued by the booking platform. Keep these stable; they are part of the token
// contract.
const (
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
)

// Managers may configure credentials and agents.
var Managers = []string{RoleOwner, RoleAdmin}

// Operators may additionally place calls.
var Operators = []string{RoleOwner, RoleAdmin, RoleStaff}

// Members covers every organization role for read-only endpoints.
var Members = []string{RoleOwner, RoleAdmin, RoleStaff, RoleViewer}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
