package contracts

import "github.com/google/uuid"

// Role 호출자 역할
type Role string

const (
	RoleForecaster     Role = "forecaster"
	RoleMarketMaker    Role = "market_maker"
	RoleSessionManager Role = "session_manager"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleForecaster || r == RoleMarketMaker || r == RoleSessionManager
}

// Caller is the authenticated identity behind a request. It is used only to
// scope reads and gate privileged writes.
type Caller struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	Superuser bool      `json:"superuser"`
}

// SystemCaller is the identity used by scheduled jobs and the operator CLI
func SystemCaller() Caller {
	return Caller{UserID: uuid.Nil, Role: RoleSessionManager, Superuser: true}
}

// IsSessionManager reports whether the caller may drive the session lifecycle
func (c Caller) IsSessionManager() bool {
	return c.Superuser || c.Role == RoleSessionManager
}

// IsMarketMaker reports whether the caller owns resources and challenges
func (c Caller) IsMarketMaker() bool {
	return c.Role == RoleMarketMaker
}

// Unrestricted reports whether the caller may read across every account
func (c Caller) Unrestricted() bool {
	return c.Superuser
}
