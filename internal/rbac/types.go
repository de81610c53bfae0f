package rbac

// Role is a named authorization group carried in a token's role claim.
type Role = string

// RoleSet is the set of roles a protected resource admits. Any one of them is
// enough. A nil RoleSet means the resource declared no requirement; a non-nil
// empty RoleSet admits nobody.
type RoleSet []Role

// Roles builds a declared RoleSet. Roles() with no arguments is a declared,
// empty set.
func Roles(roles ...Role) RoleSet {
	if roles == nil {
		return RoleSet{}
	}
	return RoleSet(roles)
}

// Declared reports whether the resource attached a role requirement at all.
func (s RoleSet) Declared() bool {
	return s != nil
}

// Intersects reports whether at least one of userRoles is in the set.
func (s RoleSet) Intersects(userRoles []Role) bool {
	if len(s) == 0 || len(userRoles) == 0 {
		return false
	}
	required := make(map[Role]bool, len(s))
	for _, r := range s {
		required[r] = true
	}
	for _, r := range userRoles {
		if required[r] {
			return true
		}
	}
	return false
}
