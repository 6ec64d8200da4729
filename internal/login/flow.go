// Package login runs the OAuth2 authorization code flow with PKCE on behalf
// of browser and terminal clients and exchanges the result for a service token.
package login

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/config"
)

// StateTTL bounds how long a started login may take to complete.
const StateTTL = 10 * time.Minute

// MaxPendingLogins caps the logins awaiting a provider callback.
const MaxPendingLogins = 1024

var (
	// ErrUnknownState is returned when the callback state was never issued, was
	// already used or has expired.
	ErrUnknownState = errors.New("unknown or expired login state")
	// ErrInvalidReturnTo is returned for redirect targets outside the frontend
	// and loopback addresses.
	ErrInvalidReturnTo = errors.New("return_to must be a loopback address or the frontend url")
	// ErrMissingIDToken is returned when the provider omits the id_token.
	ErrMissingIDToken = errors.New("token response has no id_token")
	// ErrDisabled is returned when no identity provider is configured.
	ErrDisabled = errors.New("login is not configured")
)

// Session is the result of a completed login.
type Session struct {
	Identity auth.Identity
	Scopes   []string
	Token    auth.Token
	ReturnTo string
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Flow) { f.httpClient = client }
}

// WithClock overrides the time source for state expiry.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// Flow implements the backend half of the PKCE login.
type Flow struct {
	oauth       *oauth2.Config
	issuer      *auth.Issuer
	frontendURL string
	logoutURL   string
	tokenTTL    time.Duration
	enabled     bool
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
	states      *stateStore
}

// NewFlow constructs a Flow for the configured identity provider.
func NewFlow(cfg config.OAuthConfig, issuer *auth.Issuer, frontendURL string, tokenTTL time.Duration, opts ...Option) *Flow {
	f := &Flow{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		issuer:      issuer,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logoutURL:   cfg.LogoutURL,
		tokenTTL:    tokenTTL,
		enabled:     cfg.Enabled(),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.states = newStateStore(StateTTL, MaxPendingLogins, f.now)
	return f
}

// Enabled reports whether an identity provider is configured.
func (f *Flow) Enabled() bool { return f.enabled }

// Begin starts a login and returns the provider authorization URL.
func (f *Flow) Begin(returnTo string) (string, error) {
	if !f.enabled {
		return "", ErrDisabled
	}
	if err := f.ValidateReturnTo(returnTo); err != nil {
		return "", err
	}

	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	f.states.put(state, verifier, returnTo)

	return f.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// Complete exchanges the authorization code and mints a service token for
// the user named in the id_token.
func (f *Flow) Complete(ctx context.Context, state, code string) (Session, error) {
	if !f.enabled {
		return Session{}, ErrDisabled
	}
	pending, ok := f.states.take(state)
	if !ok {
		return Session{}, ErrUnknownState
	}
	if strings.TrimSpace(code) == "" {
		return Session{}, errors.New("missing authorization code")
	}

	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	tok, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		return Session{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return Session{}, ErrMissingIDToken
	}
	identity, err := identityFromIDToken(rawID)
	if err != nil {
		return Session{}, err
	}

	scopes := append([]string(nil), auth.DefaultScopes...)
	minted, err := f.issuer.Mint(identity, scopes, f.tokenTTL)
	if err != nil {
		return Session{}, fmt.Errorf("mint service token: %w", err)
	}

	f.logger.Info("login completed", "sub", identity.Subject)
	return Session{Identity: identity, Scopes: scopes, Token: minted, ReturnTo: pending.returnTo}, nil
}

// ValidateReturnTo accepts an empty target, loopback http URLs used by the
// terminal client and URLs below the frontend URL.
func (f *Flow) ValidateReturnTo(returnTo string) error {
	if returnTo == "" {
		return nil
	}
	u, err := url.Parse(returnTo)
	if err != nil || u.Host == "" {
		return ErrInvalidReturnTo
	}
	if u.Scheme == "http" && isLoopback(u.Hostname()) {
		return nil
	}
	if f.frontendURL != "" && (returnTo == f.frontendURL || strings.HasPrefix(returnTo, f.frontendURL+"/") || strings.HasPrefix(returnTo, f.frontendURL+"?")) {
		return nil
	}
	return ErrInvalidReturnTo
}

// LogoutURL returns the provider end-session URL, or "" when none is configured.
func (f *Flow) LogoutURL(redirect string) string {
	if f.logoutURL == "" {
		return ""
	}
	u, err := url.Parse(f.logoutURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("client_id", f.oauth.ClientID)
	if redirect != "" {
		q.Set("post_logout_redirect_uri", redirect)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// identityFromIDToken reads the identity claims. The token comes straight from
// the provider's token endpoint over the back channel, so its signature is not
// checked here.
func identityFromIDToken(raw string) (auth.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return auth.Identity{}, fmt.Errorf("parse id_token: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return auth.Identity{}, errors.New("id_token has no subject")
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	email, _ := claims["email"].(string)
	return auth.Identity{Subject: sub, Name: name, Email: email}, nil
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
