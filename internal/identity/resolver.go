// Package identity resolves the acting principal of a request.
package identity

import (
	"context"
	"log/slog"
	"strconv"
	"time"
	"unicode"

	"agora/internal/models"
	"agora/internal/observability"

	"github.com/google/uuid"
)

// DefaultSessionMaxAge is how long a minted anonymous token should be persisted.
const DefaultSessionMaxAge = 30 * 24 * time.Hour

// maxTokenLength matches the principal_ref column width.
const maxTokenLength = 64

// Credentials is what the boundary extracted from a request. AccountID is zero
// when no authenticated account is present.
type Credentials struct {
	AccountID    uint
	SessionToken string
}

// Resolution is the outcome of Resolve. When Minted is set the boundary must
// persist Principal's token for PersistFor.
type Resolution struct {
	Principal  models.Principal
	Minted     bool
	PersistFor time.Duration
}

// TokenSource produces fresh anonymous session tokens.
type TokenSource func() string

// NewRandomToken returns a random (v4) UUID string.
func NewRandomToken() string {
	return uuid.NewString()
}

type Option func(*Resolver)

// WithTokenSource replaces the random token generator.
func WithTokenSource(src TokenSource) Option {
	return func(r *Resolver) { r.newToken = src }
}

// WithLogger replaces the logger used to report discarded session tokens.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithSessionMaxAge sets how long minted tokens are persisted.
func WithSessionMaxAge(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// Resolver maps request credentials to a Principal. It never fails.
type Resolver struct {
	newToken TokenSource
	maxAge   time.Duration
	logger   *slog.Logger
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{newToken: NewRandomToken, maxAge: DefaultSessionMaxAge}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve prefers the authenticated account, then a presented session token,
// and otherwise mints a new anonymous session.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) Resolution {
	if creds.AccountID != 0 {
		observability.IdentityResolutions.WithLabelValues(string(models.PrincipalAccount), "false").Inc()
		return Resolution{Principal: models.Account(creds.AccountID)}
	}

	switch problem := tokenProblem(creds.SessionToken); problem {
	case "":
		observability.IdentityResolutions.WithLabelValues(string(models.PrincipalSession), "false").Inc()
		return Resolution{Principal: models.AnonymousSession(creds.SessionToken)}
	case tokenMissing:
	default:
		// The visitor loses the engagement recorded under the old token.
		r.log().InfoContext(ctx, "discarding unusable session token, minting a new one",
			slog.String("reason", problem), slog.Int("length", len(creds.SessionToken)))
	}

	token := r.newToken()
	observability.IdentityResolutions.WithLabelValues(string(models.PrincipalSession), "true").Inc()
	return Resolution{
		Principal:  models.AnonymousSession(token),
		Minted:     true,
		PersistFor: r.maxAge,
	}
}

func (r *Resolver) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return observability.Logger
}

// Reasons a presented session token is not reused.
const (
	tokenMissing     = "missing"
	tokenTooLong     = "too_long"
	tokenUnprintable = "unprintable"
)

// tokenProblem returns "" for a printable token without whitespace that fits
// the storage column. Unusable tokens are treated like a first visit.
func tokenProblem(token string) string {
	if token == "" {
		return tokenMissing
	}
	if len(token) > maxTokenLength {
		return tokenTooLong
	}
	for _, r := range token {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return tokenUnprintable
		}
	}
	return ""
}

// ParseAccountSubject converts a JWT subject into an account ID.
func ParseAccountSubject(sub string) (uint, bool) {
	id, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
