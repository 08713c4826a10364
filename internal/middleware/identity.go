// Package middleware provides the fiber middleware chain for the HTTP API.
package middleware

import (
	"strings"
	"time"

	"agora/internal/identity"
	"agora/internal/models"
	"agora/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// PrincipalLocal is the fiber locals key holding the resolved models.Principal.
const PrincipalLocal = "principal"

// SessionCookie controls how anonymous session tokens are persisted.
type SessionCookie struct {
	Name   string
	Secure bool
}

// Identity resolves the principal of every request. A bearer token that fails
// verification is ignored and the request continues anonymously. Newly minted
// session tokens are written back as an httpOnly cookie.
func Identity(resolver *identity.Resolver, verifier *identity.AccountVerifier, cookie SessionCookie) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var creds identity.Credentials
		if token := bearerToken(c.Get(fiber.HeaderAuthorization)); token != "" && verifier != nil {
			if id, err := verifier.Verify(token); err == nil {
				creds.AccountID = id
			} else {
				observability.Logger.DebugContext(c.UserContext(), "ignoring invalid bearer token")
			}
		}
		creds.SessionToken = c.Cookies(cookie.Name)

		res := resolver.Resolve(c.UserContext(), creds)
		if res.Minted {
			token, _ := res.Principal.SessionToken()
			c.Cookie(&fiber.Cookie{
				Name:     cookie.Name,
				Value:    token,
				Path:     "/",
				MaxAge:   int(res.PersistFor / time.Second),
				Expires:  time.Now().Add(res.PersistFor),
				HTTPOnly: true,
				Secure:   cookie.Secure,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.Locals(PrincipalLocal, res.Principal)
		c.SetUserContext(observability.WithPrincipal(c.UserContext(), res.Principal.String()))
		return c.Next()
	}
}

// PrincipalFrom returns the principal stored by Identity, or the zero value.
func PrincipalFrom(c *fiber.Ctx) models.Principal {
	if p, ok := c.Locals(PrincipalLocal).(models.Principal); ok {
		return p
	}
	return models.Principal{}
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
