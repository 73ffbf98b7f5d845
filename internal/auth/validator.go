package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator validates structural and contextual properties of JWT tokens.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Validate ensures the supplied token satisfies issuer, audience and expiry requirements.
func (v TokenValidator) Validate(tok jwt.Token, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

// Identity is the caller identity carried by a verified token.
type Identity struct {
	UserID string
	Role   string
}

// Verifier parses and checks HS256 bearer tokens.
type Verifier struct {
	Secret    []byte
	Validator TokenValidator
}

// Verify parses the raw token, checks the signature and claims, and extracts
// the caller identity.
func (ver Verifier) Verify(raw string, now time.Time) (Identity, error) {
	if len(ver.Secret) == 0 {
		return Identity{}, errors.New("auth: secret not configured")
	}
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, ver.Secret),
		jwt.WithValidate(false),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}
	if err := ver.Validator.Validate(tok, now); err != nil {
		return Identity{}, err
	}
	id := Identity{UserID: tok.Subject()}
	if v, ok := tok.Get("role"); ok {
		if role, ok := v.(string); ok {
			id.Role = role
		}
	}
	if id.UserID == "" {
		return Identity{}, errors.New("auth: token missing subject")
	}
	return id, nil
}
