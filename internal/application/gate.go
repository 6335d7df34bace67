package application

import "github.com/ericfisherdev/storepanel/internal/domain/model"

// Decision is the outcome of evaluating a Requirement against an identity.
type Decision int

const (
	DeniedUnauthenticated Decision = iota
	DeniedInsufficientRole
	Allowed
)

// String returns the metric label form of the decision.
func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case DeniedInsufficientRole:
		return "denied_insufficient_role"
	default:
		return "denied_unauthenticated"
	}
}

// Requirement describes who may see a gated view. The zero value admits
// nobody; build one with RequireAuthenticated or RequireRole.
type Requirement struct {
	anyRole bool
	role    model.Role
}

// RequireAuthenticated admits any authenticated identity.
func RequireAuthenticated() Requirement {
	return Requirement{anyRole: true}
}

// RequireRole admits identities whose role is exactly role. A role outside the
// enumerated set yields a requirement no identity satisfies.
func RequireRole(role model.Role) Requirement {
	return Requirement{role: role}
}

// Authorize decides whether identity satisfies req. It performs no I/O. Role
// requirements match exactly: admin does not imply worker or customer.
func Authorize(identity *model.Identity, req Requirement) Decision {
	if identity == nil {
		return DeniedUnauthenticated
	}
	if req.anyRole {
		return Allowed
	}
	if !req.role.Valid() || identity.Role != req.role {
		return DeniedInsufficientRole
	}
	return Allowed
}
