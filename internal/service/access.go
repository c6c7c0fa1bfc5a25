package service

import "context"

// roleAccessChecker grants sync access by actor role. Admins manage
// everything; teachers manage any course or subject group they can see
// through the role-guarded routes. Roster-level ownership checks live
// in the identity service, not here.
type roleAccessChecker struct {
	roles map[string]struct{}
}

// NewRoleAccessChecker builds an AccessChecker allowing the given roles.
func NewRoleAccessChecker(roles ...string) AccessChecker {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return &roleAccessChecker{roles: allowed}
}

func (r *roleAccessChecker) CanManageCourse(_ context.Context, actor Actor, _ uint) (bool, error) {
	return r.allows(actor), nil
}

func (r *roleAccessChecker) CanManageSubjectGroup(_ context.Context, actor Actor, _ uint) (bool, error) {
	return r.allows(actor), nil
}

func (r *roleAccessChecker) allows(actor Actor) bool {
	_, ok := r.roles[actor.Role]
	return ok
}
