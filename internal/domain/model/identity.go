package model

// Identity is the authenticated principal as reported by GET /api/user.
// A nil *Identity means unauthenticated; there is no partially populated form.
type Identity struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
