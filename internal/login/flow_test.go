package login

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/config"
)

var testAuthConfig = auth.Config{Secret: "login-secret", Issuer: "fittrack"}

type tokenEndpoint struct {
	server   *httptest.Server
	verifier string
	code     string
	idToken  string
}

func newTokenEndpoint(t *testing.T, idClaims jwt.MapClaims) *tokenEndpoint {
	t.Helper()
	te := &tokenEndpoint{}
	if idClaims != nil {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, idClaims).SignedString([]byte("provider-key"))
		require.NoError(t, err)
		te.idToken = signed
	}
	te.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		te.verifier = r.PostForm.Get("code_verifier")
		te.code = r.PostForm.Get("code")
		body := map[string]any{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   300,
		}
		if te.idToken != "" {
			body["id_token"] = te.idToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(te.server.Close)
	return te
}

func newTestFlow(tokenURL string, now func() time.Time) *Flow {
	cfg := config.OAuthConfig{
		ClientID:    "oauth2-pkce-client",
		AuthURL:     "https://idp.example.com/auth",
		TokenURL:    tokenURL,
		RedirectURL: "http://localhost:8080/v1/auth/callback",
		LogoutURL:   "https://idp.example.com/logout",
		Scopes:      []string{"openid", "profile", "email"},
	}
	opts := []Option{}
	if now != nil {
		opts = append(opts, WithClock(now))
	}
	return NewFlow(cfg, auth.NewIssuer(testAuthConfig), "http://localhost:5173", time.Hour, opts...)
}

func TestFlowRoundTrip(t *testing.T) {
	te := newTokenEndpoint(t, jwt.MapClaims{"sub": "user-42", "preferred_username": "runner", "email": "runner@example.com"})
	flow := newTestFlow(te.server.URL, nil)

	authURL, err := flow.Begin("http://127.0.0.1:49152/callback")
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "oauth2-pkce-client", q.Get("client_id"))
	state := q.Get("state")
	require.NotEmpty(t, state)

	session, err := flow.Complete(context.Background(), state, "auth-code")
	require.NoError(t, err)
	require.Equal(t, "auth-code", te.code)

	sum := sha256.Sum256([]byte(te.verifier))
	require.Equal(t, q.Get("code_challenge"), base64.RawURLEncoding.EncodeToString(sum[:]))

	require.Equal(t, "user-42", session.Identity.Subject)
	require.Equal(t, "runner", session.Identity.Name)
	require.Equal(t, "http://127.0.0.1:49152/callback", session.ReturnTo)

	claims, err := auth.Parse(session.Token.AccessToken, testAuthConfig)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.Subject)
	require.True(t, claims.HasScope(auth.ScopeActivitiesWrite))

	_, err = flow.Complete(context.Background(), state, "auth-code")
	require.ErrorIs(t, err, ErrUnknownState)
}

func TestFlowRejectsExpiredState(t *testing.T) {
	now := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	te := newTokenEndpoint(t, jwt.MapClaims{"sub": "user-1"})
	flow := newTestFlow(te.server.URL, clock)

	authURL, err := flow.Begin("")
	require.NoError(t, err)
	u, _ := url.Parse(authURL)

	now = now.Add(StateTTL + time.Second)
	_, err = flow.Complete(context.Background(), u.Query().Get("state"), "code")
	require.ErrorIs(t, err, ErrUnknownState)
	require.Empty(t, te.code)
}

func TestFlowRequiresIDToken(t *testing.T) {
	te := newTokenEndpoint(t, nil)
	flow := newTestFlow(te.server.URL, nil)

	authURL, err := flow.Begin("")
	require.NoError(t, err)
	u, _ := url.Parse(authURL)

	_, err = flow.Complete(context.Background(), u.Query().Get("state"), "code")
	require.ErrorIs(t, err, ErrMissingIDToken)
}

func TestValidateReturnTo(t *testing.T) {
	flow := newTestFlow("http://unused", nil)
	cases := []struct {
		target string
		ok     bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://localhost:5173/activities", true},
		{"http://127.0.0.1:40000/cb", true},
		{"http://[::1]:40000/cb", true},
		{"https://evil.example.com/", false},
		{"http://localhost:5173.evil.example.com/", false},
		{"https://127.0.0.1/cb", false},
		{"not a url", false},
	}
	for _, tc := range cases {
		err := flow.ValidateReturnTo(tc.target)
		if tc.ok {
			require.NoError(t, err, tc.target)
		} else {
			require.ErrorIs(t, err, ErrInvalidReturnTo, tc.target)
		}
	}
}

func TestBeginWhenDisabled(t *testing.T) {
	flow := NewFlow(config.OAuthConfig{}, auth.NewIssuer(testAuthConfig), "", time.Hour)
	require.False(t, flow.Enabled())
	_, err := flow.Begin("")
	require.ErrorIs(t, err, ErrDisabled)
}

func TestLogoutURL(t *testing.T) {
	flow := newTestFlow("http://unused", nil)
	u, err := url.Parse(flow.LogoutURL("http://localhost:5173"))
	require.NoError(t, err)
	require.Equal(t, "oauth2-pkce-client", u.Query().Get("client_id"))
	require.Equal(t, "http://localhost:5173", u.Query().Get("post_logout_redirect_uri"))
}

func TestStateStoreSweepsExpired(t *testing.T) {
	now := time.Unix(0, 0)
	store := newStateStore(time.Minute, 0, func() time.Time { return now })
	store.put("a", "v", "")
	now = now.Add(2 * time.Minute)
	store.put("b", "v", "")
	require.Equal(t, 1, store.len())
}

func TestStateStoreEvictsOldestWhenFull(t *testing.T) {
	now := time.Unix(0, 0)
	store := newStateStore(time.Minute, 3, func() time.Time { return now })
	for _, state := range []string{"a", "b", "c", "d", "e"} {
		store.put(state, "v-"+state, "")
		now = now.Add(time.Second)
	}
	require.Equal(t, 3, store.len())

	_, ok := store.take("a")
	require.False(t, ok)
	_, ok = store.take("b")
	require.False(t, ok)
	p, ok := store.take("e")
	require.True(t, ok)
	require.Equal(t, "v-e", p.verifier)
}
