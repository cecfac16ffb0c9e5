package model

import "time"

// Identity is the verified principal behind an external credential.
// Immutable once resolved; sessions embed a snapshot of it.
type Identity struct {
	ID      int64
	Handle  string
	Name    string
	Email   string
	Orgs    []string
	IsAdmin bool
}

// MemberOf reports whether the identity lists org among its memberships.
func (i Identity) MemberOf(org string) bool {
	for _, o := range i.Orgs {
		if o == org {
			return true
		}
	}
	return false
}

// SessionClaims is the identity snapshot carried inside a session token,
// plus its validity bounds. Validity is fully determined by the token
// signature and ExpiresAt; there is no server-side session store.
type SessionClaims struct {
	Identity  Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthzDecision records the outcome of one authorization check for the
// audit sink. Handle is "unauthenticated" when no session was presented.
type AuthzDecision struct {
	Timestamp time.Time
	Handle    string
	Org       string
	Action    string
	Allowed   bool
	Reason    string
}
