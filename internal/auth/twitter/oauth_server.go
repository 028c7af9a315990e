package twitter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CallbackResult contains the parameters captured from the OAuth redirect.
// Both acceptor strategies (the local callback server and the manual paste
// parser) produce this shape.
type CallbackResult struct {
	// Code is the authorization code received from the provider.
	Code string
	// State is the state parameter echoed back by the provider.
	State string
	// Error is the provider's error code when authorization was denied.
	Error string
	// ErrorDescription is the provider's human-readable denial reason.
	ErrorDescription string
}

// Denied reports whether the provider redirected back with an error.
func (r *CallbackResult) Denied() bool {
	return r != nil && r.Error != ""
}

// OAuthServer is the short-lived local HTTP server that captures the OAuth
// redirect. It accepts exactly one callback, hands the parsed result to the
// waiting flow, and is then shut down.
type OAuthServer struct {
	// server is the underlying HTTP server instance
	server *http.Server
	// port is the port number on which the server listens
	port int
	// resultChan is a channel for sending OAuth results
	resultChan chan *CallbackResult
	// errorChan is a channel for sending server errors
	errorChan chan error
	// mu protects server state
	mu sync.Mutex
	// running indicates whether the server is currently running
	running bool
}

// NewOAuthServer creates a new OAuth callback server for the given port.
func NewOAuthServer(port int) *OAuthServer {
	return &OAuthServer{
		port:       port,
		resultChan: make(chan *CallbackResult, 1),
		errorChan:  make(chan error, 1),
	}
}

// Start begins listening for the OAuth callback. A port that is already
// bound surfaces as ErrPortInUse; this is reported to the operator, not
// retried.
func (s *OAuthServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return NewAuthenticationError(ErrPortInUse, fmt.Errorf("port %d is already in use: %w", s.port, err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.server = srv
	s.running = true

	// Serve on the captured server, not the shared field: Stop clears the
	// field and may run before this goroutine is scheduled.
	go func() {
		if errServe := srv.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			s.errorChan <- fmt.Errorf("callback server failed: %w", errServe)
		}
	}()

	log.Debugf("OAuth callback server listening on %s", addr)
	return nil
}

// Stop gracefully stops the OAuth callback server.
func (s *OAuthServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	log.Debug("stopping OAuth callback server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil

	return err
}

// WaitForCallback blocks until the redirect arrives, a server error occurs,
// or the timeout elapses.
func (s *OAuthServer) WaitForCallback(timeout time.Duration) (*CallbackResult, error) {
	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return nil, err
	case <-time.After(timeout):
		return nil, ErrCallbackTimeout
	}
}

// handleCallback handles the OAuth redirect, parsing code, state, and the
// optional error parameters from the query string and rendering an
// acknowledgment page for the browser.
func (s *OAuthServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	log.Debug("received OAuth callback")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	switch {
	case result.Error != "":
		log.Errorf("OAuth callback reported error: %s", result.Error)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, authFailureHTML, result.Error, result.ErrorDescription)
	case result.Code == "":
		log.Error("no authorization code received")
		result.Error = "no_code"
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(w, authFailureHTML, "missing code", "the callback did not include an authorization code")
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, authSuccessHTML)
	}

	s.sendResult(result)
}

// sendResult delivers the callback result without blocking the handler.
// Only the first callback counts; later ones are dropped.
func (s *OAuthServer) sendResult(result *CallbackResult) {
	select {
	case s.resultChan <- result:
		log.Debug("OAuth callback result delivered")
	default:
		log.Warn("duplicate OAuth callback ignored")
	}
}

// IsRunning returns whether the server is currently running.
func (s *OAuthServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
