package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// loginResult is what the API appends to the loopback redirect.
type loginResult struct {
	Token     string
	ExpiresAt time.Time
}

// BrowserOpener opens a URL for the user.
type BrowserOpener func(url string) error

// OpenBrowser launches the platform browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// loopbackLogin listens on 127.0.0.1, sends the user through the API login
// and waits for the redirect that carries the minted token.
func loopbackLogin(ctx context.Context, loginURL func(returnTo string) string, open BrowserOpener, timeout time.Duration) (loginResult, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return loginResult{}, fmt.Errorf("start callback listener: %w", err)
	}
	returnTo := fmt.Sprintf("http://%s/callback", ln.Addr().String())

	results := make(chan loginResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		token := q.Get("access_token")
		if token == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprint(w, "Login failed: no token received.")
			return
		}
		res := loginResult{Token: token}
		if secs, err := strconv.ParseInt(q.Get("expires_at"), 10, 64); err == nil {
			res.ExpiresAt = time.Unix(secs, 0).UTC()
		}
		_, _ = fmt.Fprint(w, "Login successful! You can close this window and return to the terminal.")
		select {
		case results <- res:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			close(results)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := open(loginURL(returnTo)); err != nil {
		return loginResult{}, fmt.Errorf("open browser: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case res, ok := <-results:
		if !ok {
			return loginResult{}, errors.New("callback server stopped")
		}
		return res, nil
	case <-ctx.Done():
		return loginResult{}, errors.New("login timed out")
	}
}
