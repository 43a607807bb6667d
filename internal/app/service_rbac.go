package app

import (
	"context"
	"net/http"
	"strings"

	"qero/api/internal/dedupe"
	"qero/api/internal/rbac"
)

const actionRead = rbac.ActionRead

// Authorizer gates cleanup operations on the actor's role.
type Authorizer struct{}

func (Authorizer) AllowCleanup(_ context.Context, actor dedupe.Actor) bool {
	return rbac.Can(rbac.Normalize(actor.Role), rbac.ActionCleanup)
}

func requireAction(session Session, action rbac.Action) error {
	if !rbac.Can(rbac.Normalize(session.Role), action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": string(action)})
	}
	return nil
}

// scopeFor resolves the dedupe scope of a request. Users bound to a team
// work inside that team only; admins may pick any team or all of them.
func scopeFor(session Session, requested string) (dedupe.Scope, error) {
	requested = strings.TrimSpace(requested)
	if rbac.Normalize(session.Role) == rbac.RoleAdmin || session.TeamID == "" {
		return dedupe.Scope{TeamID: requested}, nil
	}
	if requested == "" || requested == session.TeamID {
		return dedupe.Scope{TeamID: session.TeamID}, nil
	}
	return dedupe.Scope{}, domainError(http.StatusForbidden, "FORBIDDEN", "Team outside of session scope", map[string]any{"teamId": requested})
}
