package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// authorizedSession returns a session that already holds a long-lived token
// and records every wait instead of sleeping.
func authorizedSession(waits *[]time.Duration) *Session {
	s := NewSession(Options{ClientID: "id", ClientSecret: "secret", Wait: 3 * time.Second})
	s.token = &oauth2.Token{AccessToken: "tok"}
	s.expiry = time.Now().Add(time.Hour)
	s.sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return s
}

func TestCallSucceedsOnFifthAttempt(t *testing.T) {
	var waits []time.Duration
	s := authorizedSession(&waits)

	calls := 0
	got, err := Call(context.Background(), s, "get track", func(_ context.Context, token string) (string, error) {
		calls++
		if token != "tok" {
			t.Errorf("token = %q", token)
		}
		if calls < 5 {
			return "", fmt.Errorf("rate limited")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
	if len(waits) != 4 {
		t.Errorf("waits = %d, want 4", len(waits))
	}
	for _, w := range waits {
		if w != 3*time.Second {
			t.Errorf("wait = %s, want flat 3s", w)
		}
	}
}

func TestCallExhaustsAttempts(t *testing.T) {
	var waits []time.Duration
	s := authorizedSession(&waits)

	calls := 0
	_, err := Call(context.Background(), s, "list playlist", func(context.Context, string) (int, error) {
		calls++
		return 0, fmt.Errorf("boom %d", calls)
	})

	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError, got %v", err)
	}
	if retryErr.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", retryErr.Attempts)
	}
	if !strings.Contains(err.Error(), "5 attempts") || !strings.Contains(err.Error(), "boom 5") {
		t.Errorf("error should name attempt count and last error: %v", err)
	}
	if calls != 5 || len(waits) != 4 {
		t.Errorf("calls = %d waits = %d", calls, len(waits))
	}
}

func TestCallDoesNotRetryAuthFailure(t *testing.T) {
	s := NewSession(Options{})
	s.codeSource = nil
	s.login = true

	calls := 0
	_, err := Call(context.Background(), s, "saved tracks", func(context.Context, string) (int, error) {
		calls++
		return 0, nil
	})
	if err == nil {
		t.Fatal("expected authorization error")
	}
	if calls != 0 {
		t.Errorf("operation should not run without credentials, ran %d times", calls)
	}
}

func TestCallStopsOnCancel(t *testing.T) {
	var waits []time.Duration
	s := authorizedSession(&waits)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Call(ctx, s, "op", func(context.Context, string) (int, error) {
		cancel()
		return 0, errors.New("interrupted")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(waits) != 0 {
		t.Errorf("should not wait after cancellation")
	}
}

// tokenServer fakes the accounts service for the grant types the session uses.
type tokenServer struct {
	*httptest.Server
	hits        atomic.Int32
	failRefresh bool
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}

		resp := map[string]any{"token_type": "Bearer", "expires_in": 3600}
		switch r.PostForm.Get("grant_type") {
		case "client_credentials":
			resp["access_token"] = "app-token"
		case "refresh_token":
			if ts.failRefresh {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			resp["access_token"] = "refreshed-" + r.PostForm.Get("refresh_token")
			resp["refresh_token"] = "rotated"
		case "authorization_code":
			if r.PostForm.Get("code") != "the-code" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			resp["access_token"] = "user-token"
			resp["refresh_token"] = "user-refresh"
		default:
			http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	return ts
}

type fakeCodeSource struct {
	calls   int
	lastURL string
}

func (f *fakeCodeSource) Code(_ context.Context, authURL, state string) (string, error) {
	f.calls++
	f.lastURL = authURL
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	if u.Query().Get("state") != state {
		return "", fmt.Errorf("state not propagated")
	}
	return "the-code", nil
}

func TestSessionAnonymousTokenIsCached(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	s := NewSession(Options{ClientID: "id", ClientSecret: "secret", TokenURL: ts.URL})
	if s.State() != Unauthenticated {
		t.Fatal("new session should be unauthenticated")
	}

	for i := 0; i < 3; i++ {
		tok, err := s.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() error: %v", err)
		}
		if tok != "app-token" {
			t.Errorf("token = %q", tok)
		}
	}
	if ts.hits.Load() != 1 {
		t.Errorf("token endpoint hit %d times, want 1", ts.hits.Load())
	}
	if s.State() != Authorized {
		t.Error("session should be authorized")
	}
}

func TestSessionRefreshesWhenStale(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	s := NewSession(Options{ClientID: "id", ClientSecret: "secret", TokenURL: ts.URL})
	if _, err := s.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ts.hits.Load() != 2 {
		t.Errorf("token endpoint hit %d times, want 2", ts.hits.Load())
	}
}

func TestSessionUsesStoredRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	if err := store.Save("stored-rt"); err != nil {
		t.Fatal(err)
	}

	s := NewSession(Options{ClientID: "id", ClientSecret: "secret", TokenURL: ts.URL, Store: store})
	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if tok != "refreshed-stored-rt" {
		t.Errorf("token = %q", tok)
	}

	rt, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if rt != "rotated" {
		t.Errorf("stored refresh token = %q, want rotated", rt)
	}
}

func TestSessionRefreshFailureSurfaces(t *testing.T) {
	ts := newTokenServer(t)
	ts.failRefresh = true
	defer ts.Close()

	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	store.Save("stale")

	s := NewSession(Options{ClientID: "id", ClientSecret: "secret", TokenURL: ts.URL, Store: store})
	if _, err := s.Token(context.Background()); err == nil {
		t.Fatal("expected refresh failure")
	}
	if s.State() != Unauthenticated {
		t.Error("failed refresh should leave the session unauthenticated")
	}
}

func TestSessionDelegatedLogin(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	codes := &fakeCodeSource{}
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	s := NewSession(Options{
		ClientID: "id", ClientSecret: "secret",
		AuthURL: ts.URL + "/authorize", TokenURL: ts.URL,
		RedirectURL: "http://127.0.0.1:8888/callback",
		Login:       true, Store: store, CodeSource: codes,
	})

	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if tok != "user-token" {
		t.Errorf("token = %q", tok)
	}
	if !strings.Contains(codes.lastURL, "client_id=id") || !strings.Contains(codes.lastURL, "user-library-read") {
		t.Errorf("auth url missing params: %s", codes.lastURL)
	}
	if rt, _ := store.Load(); rt != "user-refresh" {
		t.Errorf("stored refresh token = %q", rt)
	}
}

func TestSessionUpgradesForPersonalizedBatch(t *testing.T) {
	ts := newTokenServer(t)
	defer ts.Close()

	codes := &fakeCodeSource{}
	s := NewSession(Options{
		ClientID: "id", ClientSecret: "secret",
		AuthURL: ts.URL + "/authorize", TokenURL: ts.URL,
		CodeSource: codes,
	})

	if tok, _ := s.Token(context.Background()); tok != "app-token" {
		t.Fatalf("expected anonymous token first, got %q", tok)
	}
	s.RequirePersonalized(true)
	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "user-token" || codes.calls != 1 {
		t.Errorf("token = %q, code calls = %d", tok, codes.calls)
	}
}

func TestStoreMissingFile(t *testing.T) {
	rt, err := NewStore(filepath.Join(t.TempDir(), "missing.json")).Load()
	if err != nil || rt != "" {
		t.Errorf("Load() = %q, %v", rt, err)
	}
	var nilStore *Store
	if rt, err := nilStore.Load(); err != nil || rt != "" {
		t.Errorf("nil store Load() = %q, %v", rt, err)
	}
}

func TestCallbackServerCode(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cb := NewCallbackServer(0, nil)
	cb.Addr = addr
	cb.Open = func(authURL string) error {
		go func() {
			resp, err := http.Get("http://" + addr + "/callback?state=xyz&code=abc")
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	code, err := cb.Code(ctx, "https://accounts.example/authorize", "xyz")
	if err != nil {
		t.Fatalf("Code() error: %v", err)
	}
	if code != "abc" {
		t.Errorf("code = %q, want abc", code)
	}
}

func TestCallbackServerStateMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cb := NewCallbackServer(0, nil)
	cb.Addr = addr
	cb.Open = func(string) error {
		go func() {
			resp, err := http.Get("http://" + addr + "/callback?state=forged&code=abc")
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cb.Code(ctx, "https://accounts.example/authorize", "xyz"); err == nil {
		t.Error("expected state mismatch error")
	}
}
