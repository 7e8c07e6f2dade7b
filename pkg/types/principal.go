package types

import (
	"strings"

	"github.com/google/uuid"
)

// Principal is the resolved caller: an authenticated user or an anonymous
// storefront session, never both.
type Principal struct {
	UserID    *uuid.UUID
	SessionID string
}

func UserPrincipal(id uuid.UUID) Principal {
	return Principal{UserID: &id}
}

func SessionPrincipal(sessionID string) Principal {
	return Principal{SessionID: strings.TrimSpace(sessionID)}
}

// IsUser reports whether the principal is an authenticated user.
func (p Principal) IsUser() bool {
	return p.UserID != nil && *p.UserID != uuid.Nil
}

// Valid reports whether the principal identifies exactly one owner.
func (p Principal) Valid() bool {
	if p.IsUser() {
		return p.SessionID == ""
	}
	return p.SessionID != ""
}

// OwnerKey is the unique cart owner key for the principal.
func (p Principal) OwnerKey() string {
	if p.IsUser() {
		return "user:" + p.UserID.String()
	}
	if p.SessionID != "" {
		return "session:" + p.SessionID
	}
	return ""
}
