package model

import "fmt"

// Role is the closed set of principal roles the backend assigns. The zero
// value is not a valid role; values only enter the system through ParseRole.
type Role uint8

const (
	RoleCustomer Role = iota + 1
	RoleWorker
	RoleAdmin
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleCustomer, RoleWorker, RoleAdmin}

// ParseRole converts the wire representation of a role into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "customer":
		return RoleCustomer, nil
	case "worker":
		return RoleWorker, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// String returns the wire representation of the role.
func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleWorker:
		return "worker"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleWorker || r == RoleAdmin
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("marshal invalid role %d", r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown roles are rejected.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
