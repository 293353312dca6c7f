package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"

	"github.com/Additional-Code/vaultshop/internal/config"
)

// Module provides the admin token Issuer to Fx.
var Module = fx.Provide(NewIssuer)

// RoleAdmin is the only role accepted by the admin endpoints.
const RoleAdmin = "admin"

var (
	// ErrNotConfigured is returned when ADMIN_JWT_SECRET is empty.
	ErrNotConfigured = errors.New("auth: admin tokens are not configured")
	// ErrInvalidToken is returned for malformed, expired or foreign tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Principal is the authenticated caller of an admin endpoint.
type Principal struct {
	Subject string
	Role    string
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies HS256 admin tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an Issuer from configuration.
func NewIssuer(cfg config.Config) *Issuer {
	return &Issuer{
		secret: []byte(cfg.Admin.JWTSecret),
		ttl:    cfg.Admin.TokenTTL,
		now:    time.Now,
	}
}

// Issue signs a token for subject valid for the configured TTL.
func (i *Issuer) Issue(subject string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrNotConfigured
	}
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	now := i.now()
	expires := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse validates tokenStr and returns its principal.
func (i *Issuer) Parse(tokenStr string) (*Principal, error) {
	if len(i.secret) == 0 {
		return nil, ErrNotConfigured
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	c, _ := tok.Claims.(*claims)
	if c == nil || c.Subject == "" || c.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	return &Principal{Subject: c.Subject, Role: c.Role}, nil
}
