package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/login"
)

func (h *Handler) beginLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if h.login == nil || !h.login.Enabled() {
		writeError(w, http.StatusNotFound, "not_found", "login is not configured")
		return
	}

	authURL, err := h.login.Begin(r.URL.Query().Get("return_to"))
	if err != nil {
		if errors.Is(err, login.ErrInvalidReturnTo) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.writeServiceError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) loginCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if h.login == nil || !h.login.Enabled() {
		writeError(w, http.StatusNotFound, "not_found", "login is not configured")
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		detail := providerErr
		if desc := q.Get("error_description"); desc != "" {
			detail += ": " + desc
		}
		writeError(w, http.StatusUnauthorized, "login_failed", detail)
		return
	}

	session, err := h.login.Complete(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		if errors.Is(err, login.ErrUnknownState) {
			writeError(w, http.StatusBadRequest, "invalid_state", err.Error())
			return
		}
		h.logger.Warn("login callback failed", "error", err)
		writeError(w, http.StatusBadGateway, "login_failed", err.Error())
		return
	}

	if session.ReturnTo != "" {
		target, err := url.Parse(session.ReturnTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", login.ErrInvalidReturnTo.Error())
			return
		}
		params := target.Query()
		params.Set("access_token", session.Token.AccessToken)
		params.Set("expires_at", strconv.FormatInt(session.Token.ExpiresAt.Unix(), 10))
		target.RawQuery = params.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		AccessToken: session.Token.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   session.Token.ExpiresAt,
		User:        UserView{Subject: session.Identity.Subject, Name: session.Identity.Name, Email: session.Identity.Email, Scopes: session.Scopes},
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	writeJSON(w, http.StatusOK, UserView{
		Subject:   claims.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		Scopes:    claims.ScopeList(),
		ExpiresAt: &claims.ExpiresAt,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := auth.FromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	resp := LogoutResponse{LoggedOutAt: time.Now().UTC()}
	if h.login != nil {
		resp.LogoutURL = h.login.LogoutURL(r.URL.Query().Get("redirect"))
	}
	writeJSON(w, http.StatusOK, resp)
}
