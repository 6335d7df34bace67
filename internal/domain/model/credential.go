package model

// Credential is the opaque bearer token issued by POST /api/login.
// The client knows nothing about its expiry; the backend enforces it.
type Credential struct {
	Token string
}

// IsZero reports whether no token is held.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// AuthorizationHeader returns the value for the Authorization request header,
// or "" when no token is held.
func (c Credential) AuthorizationHeader() string {
	if c.IsZero() {
		return ""
	}
	return "Bearer " + c.Token
}

// String redacts the token so credentials never leak into logs.
func (c Credential) String() string {
	if c.IsZero() {
		return "Credential(none)"
	}
	return "Credential(redacted)"
}
