package gate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"spotifydl/internal/logger"
)

// CallbackServer collects an authorization code on a local redirect listener.
type CallbackServer struct {
	Addr   string
	Path   string
	Logger *logger.Logger

	// Open shows authURL to the user. Defaults to launching the system browser.
	Open func(authURL string) error

	// Username and Password would drive the consent page without the user; no
	// browser automation is bundled, so they only trigger a notice.
	Username string
	Password string
}

// NewCallbackServer listens on localhost:port/callback.
func NewCallbackServer(port int, log *logger.Logger) *CallbackServer {
	if log == nil {
		log = logger.Discard()
	}
	return &CallbackServer{
		Addr:   fmt.Sprintf("127.0.0.1:%d", port),
		Path:   "/callback",
		Logger: log,
		Open:   openBrowser,
	}
}

// RedirectURL is the URL registered with the provider for this listener.
func (c *CallbackServer) RedirectURL() string {
	return "http://" + c.Addr + c.Path
}

type callbackResult struct {
	code string
	err  error
}

// Code opens the consent page and blocks until the provider redirects back.
func (c *CallbackServer) Code(ctx context.Context, authURL, state string) (string, error) {
	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("listen for callback: %w", err)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(c.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = errors.New("state mismatch in authorization callback")
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("authorization callback carried no code")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Login successful, you can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if c.Username != "" || c.Password != "" {
		c.Logger.Warn("Automatic login with username/password is not supported, complete the consent page manually")
	}
	c.Logger.Info("Open this URL to log in:\n%s", authURL)
	if c.Open != nil {
		if err := c.Open(authURL); err != nil {
			c.Logger.Debug("Could not open browser: %v", err)
		}
	}

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func openBrowser(u string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	return cmd.Start()
}
