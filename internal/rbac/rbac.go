package rbac

type Role string
type Action string

const (
	RoleViewer    Role = "viewer"
	RoleRecruiter Role = "recruiter"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionCleanup Action = "cleanup"
)

// Can reports whether role may perform action. Cleanup spans records of
// every user in a team, so only managers and admins may run it.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action == ActionRead || action == ActionWrite || action == ActionCleanup
	case RoleRecruiter:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleRecruiter, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
