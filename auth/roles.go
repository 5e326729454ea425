package auth

// Role is a capability label attached to a user.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleReviewer     Role = "reviewer"
	RoleStudent      Role = "student"
	RoleProgramAdmin Role = "program-admin"
)

// AllRoles lists the roles known to the site in display order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleProgramAdmin, RoleReviewer, RoleStudent}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRoles converts raw names, dropping unknown ones and duplicates.
func ParseRoles(names []string) []Role {
	seen := make(map[Role]bool, len(names))
	out := make([]Role, 0, len(names))
	for _, n := range names {
		r := Role(n)
		if !r.Valid() || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// HasRole reports whether the session carries role. A nil session has no roles.
func HasRole(s *Session, role Role) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the session carries at least one of roles.
func HasAnyRole(s *Session, roles ...Role) bool {
	if s == nil {
		return false
	}
	for _, r := range roles {
		if HasRole(s, r) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the session carries every one of roles.
// A nil session never qualifies, even for an empty list.
func HasAllRoles(s *Session, roles ...Role) bool {
	if s == nil {
		return false
	}
	for _, r := range roles {
		if !HasRole(s, r) {
			return false
		}
	}
	return true
}

// primaryRole picks the role that decides the session's variant and landing
// page. Order: admin, program-admin, reviewer, student.
func primaryRole(roles []Role) (Role, bool) {
	for _, candidate := range AllRoles() {
		for _, r := range roles {
			if r == candidate {
				return r, true
			}
		}
	}
	return "", false
}

// HomePath is the landing page for a session, the single table used by every
// login and redirect flow.
func HomePath(s *Session) string {
	if s == nil {
		return "/auth/login"
	}
	switch s.Variant.(type) {
	case AdminVariant, ProgramAdminVariant:
		return "/auth/submissions"
	case ReviewerVariant:
		return "/auth/reviewer"
	case StudentVariant:
		return "/students"
	}
	return "/auth/login"
}
