package identity

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid account token")

// AccountVerifier validates HS256 bearer tokens issued by the account system.
type AccountVerifier struct {
	secret []byte
}

func NewAccountVerifier(secret string) *AccountVerifier {
	return &AccountVerifier{secret: []byte(secret)}
}

// Verify returns the account ID carried in the token's "sub" claim.
func (v *AccountVerifier) Verify(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return 0, ErrInvalidToken
	}
	id, ok := ParseAccountSubject(sub)
	if !ok {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Issue signs a token for accountID valid for ttl. Used by agoractl and tests.
func (v *AccountVerifier) Issue(accountID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(accountID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
