package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity describes the user a token is minted for.
type Identity struct {
	Subject string
	Name    string
	Email   string
}

// Token is a signed service token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Issuer signs HS256 service tokens that Parse accepts with the same Config.
type Issuer struct {
	cfg Config
	now func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(cfg Config) *Issuer {
	return &Issuer{cfg: cfg, now: time.Now}
}

// Mint signs a token for the identity carrying the provided scopes.
func (i *Issuer) Mint(id Identity, scopes []string, ttl time.Duration) (Token, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return Token{}, errors.New("identity subject is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := i.now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":   id.Subject,
		"iss":   i.cfg.Issuer,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"scope": strings.Join(scopes, " "),
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: time.Unix(exp.Unix(), 0).UTC()}, nil
}
