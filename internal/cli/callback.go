package cli

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// callbackServer receives one OAuth redirect on localhost and hands the
// authorization code back to the CLI flow.
type callbackServer struct {
	mu       sync.Mutex
	port     int
	expected string
	codeCh   chan string
	errCh    chan error
	server   *http.Server
	listener net.Listener
}

func newCallbackServer(port int) *callbackServer {
	return &callbackServer{
		port:   port,
		codeCh: make(chan string, 1),
		errCh:  make(chan error, 1),
	}
}

// Start listens on 127.0.0.1. Port 0 picks a free port; the redirect
// URI must be read after Start.
func (s *callbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handle)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("starting callback listener: %w", err)
	}
	s.listener = listener
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = addr.Port
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()
	return nil
}

// Expect sets the state value the callback must carry. Must be called
// before the provider redirects back.
func (s *callbackServer) Expect(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expected = state
}

func (s *callbackServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	expected := s.expected
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html")

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		s.fail(fmt.Errorf("provider returned %s: %s", errParam, desc))
		fmt.Fprint(w, resultPage("Authorization failed", html.EscapeString(desc)))
		return
	}
	if state := r.URL.Query().Get("state"); state != expected {
		s.fail(fmt.Errorf("state mismatch on callback"))
		fmt.Fprint(w, resultPage("Authorization failed", "invalid state parameter"))
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		s.fail(fmt.Errorf("no authorization code in callback"))
		fmt.Fprint(w, resultPage("Authorization failed", "no code received"))
		return
	}

	select {
	case s.codeCh <- code:
	default:
	}
	fmt.Fprint(w, resultPage("Authorization successful", "You can close this window and return to the terminal."))
}

func (s *callbackServer) fail(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}

// WaitForCode blocks until the code arrives, an error occurs, or the
// timeout elapses.
func (s *callbackServer) WaitForCode(timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case code := <-s.codeCh:
		return code, nil
	case err := <-s.errCh:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("timed out waiting for authorization callback")
	}
}

// Stop shuts the server down.
func (s *callbackServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// RedirectURI returns the callback URL for the bound port.
func (s *callbackServer) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("http://127.0.0.1:%d/callback", s.port)
}

func resultPage(title, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>openindex</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, title, message)
}

// openBrowser opens the default browser to url.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
