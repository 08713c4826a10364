package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// PrincipalKind tags which identity variant a Principal carries.
type PrincipalKind string

const (
	// PrincipalAccount is a registered, authenticated account.
	PrincipalAccount PrincipalKind = "account"
	// PrincipalSession is an anonymous visitor identified by a persistent session token.
	PrincipalSession PrincipalKind = "session"
)

// Principal is the resolved actor of a request: either an account or an anonymous
// session, never both. Ref holds the decimal account ID or the session token.
type Principal struct {
	Kind PrincipalKind `gorm:"size:16;not null" json:"kind"`
	Ref  string        `gorm:"size:64;not null" json:"ref"`
}

// Account returns the principal for a registered account.
func Account(accountID uint) Principal {
	return Principal{Kind: PrincipalAccount, Ref: strconv.FormatUint(uint64(accountID), 10)}
}

// AnonymousSession returns the principal for an anonymous session token.
func AnonymousSession(token string) Principal {
	return Principal{Kind: PrincipalSession, Ref: token}
}

// Valid reports whether exactly one variant is populated.
func (p Principal) Valid() bool {
	switch p.Kind {
	case PrincipalAccount:
		id, err := strconv.ParseUint(p.Ref, 10, 64)
		return err == nil && id != 0
	case PrincipalSession:
		return p.Ref != ""
	default:
		return false
	}
}

// AccountID returns the account ID when p is an account principal.
func (p Principal) AccountID() (uint, bool) {
	if p.Kind != PrincipalAccount {
		return 0, false
	}
	id, err := strconv.ParseUint(p.Ref, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// SessionToken returns the token when p is an anonymous session principal.
func (p Principal) SessionToken() (string, bool) {
	if p.Kind != PrincipalSession || p.Ref == "" {
		return "", false
	}
	return p.Ref, true
}

// IsAnonymous reports whether p is an anonymous session.
func (p Principal) IsAnonymous() bool {
	return p.Kind == PrincipalSession
}

// Equal is the only ownership comparison in the system. Principals of different
// kinds are never equal, even when their refs happen to match.
func (p Principal) Equal(other Principal) bool {
	return p.Valid() && other.Valid() && p.Kind == other.Kind && p.Ref == other.Ref
}

// String renders the principal for logs and cache keys. Session tokens are shortened.
func (p Principal) String() string {
	switch p.Kind {
	case PrincipalAccount:
		return "account:" + p.Ref
	case PrincipalSession:
		ref := p.Ref
		if len(ref) > 8 {
			ref = ref[:8]
		}
		return "session:" + ref
	default:
		return "unknown"
	}
}

// AuthorView is the public rendering of a principal. Session tokens are bearer
// credentials, so anonymous authors are shown by a one-way handle instead.
type AuthorView struct {
	Kind   PrincipalKind `json:"kind"`
	Handle string        `json:"handle"`
}

// View renders p for API responses.
func (p Principal) View() AuthorView {
	switch p.Kind {
	case PrincipalAccount:
		return AuthorView{Kind: p.Kind, Handle: p.Ref}
	case PrincipalSession:
		sum := sha256.Sum256([]byte(p.Ref))
		return AuthorView{Kind: p.Kind, Handle: "anon-" + hex.EncodeToString(sum[:6])}
	default:
		return AuthorView{}
	}
}
