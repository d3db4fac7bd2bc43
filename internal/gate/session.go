// Package gate guards every call to the authenticated catalog API: it owns the
// token lifecycle (authorize, refresh, expire) and retries failed calls with a
// flat wait between attempts.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"spotifydl/internal/logger"
)

// Spotify accounts endpoints.
const (
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
)

// expirySkew renews tokens slightly before the provider would reject them.
const expirySkew = 60 * time.Second

// Scopes requested for delegated (user) authorization.
var Scopes = []string{
	"user-library-read",
	"playlist-read-private",
	"playlist-read-collaborative",
	"user-read-playback-position",
}

// State is the credential state of a session.
type State int

const (
	Unauthenticated State = iota
	Authorized
)

// CodeSource obtains an authorization code from the user for authURL.
type CodeSource interface {
	Code(ctx context.Context, authURL, state string) (string, error)
}

// Options configures a Session.
type Options struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string

	// Login forces delegated authorization even for public collections.
	Login bool

	Store      *Store
	CodeSource CodeSource

	Attempts int
	Wait     time.Duration
	Logger   *logger.Logger
}

// Session holds the process-wide credential state for one run. Token
// read-check-refresh is serialized under mu, so a Session may be shared by
// concurrent callers.
type Session struct {
	mu           sync.Mutex
	token        *oauth2.Token
	expiry       time.Time
	delegated    bool
	personalized bool

	login      bool
	oauth      *oauth2.Config
	anon       *clientcredentials.Config
	store      *Store
	codeSource CodeSource

	attempts int
	wait     time.Duration
	logger   *logger.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewSession creates an unauthenticated Session. No network I/O happens
// until the first call.
func NewSession(opts Options) *Session {
	authURL := opts.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	endpoint := oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInHeader}
	return &Session{
		login: opts.Login,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  opts.RedirectURL,
			Scopes:       Scopes,
		},
		anon: &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		store:      opts.Store,
		codeSource: opts.CodeSource,
		attempts:   attempts,
		wait:       opts.Wait,
		logger:     log,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// RequirePersonalized marks the current batch as needing a user-delegated token.
// A session holding an anonymous token re-authorizes on its next call.
func (s *Session) RequirePersonalized(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personalized = v
}

// State reports whether the session currently holds a token.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return Unauthenticated
	}
	return Authorized
}

// Token returns a valid access token, authorizing or refreshing first when needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needDelegated := s.login || s.personalized

	switch {
	case s.token == nil:
		if err := s.initialize(ctx, needDelegated); err != nil {
			return "", err
		}
	case needDelegated && !s.delegated:
		if err := s.authorize(ctx, true); err != nil {
			return "", err
		}
	case !s.now().Before(s.expiry):
		s.logger.Debug("Access token expired, refreshing")
		if err := s.refresh(ctx); err != nil {
			return "", err
		}
	}

	return s.token.AccessToken, nil
}

// initialize runs the first transition out of Unauthenticated. Must hold mu.
func (s *Session) initialize(ctx context.Context, needDelegated bool) error {
	refreshToken, err := s.store.Load()
	if err != nil {
		s.logger.Warn("Ignoring stored credentials: %v", err)
	}
	if refreshToken != "" {
		s.token = &oauth2.Token{RefreshToken: refreshToken}
		s.delegated = true
		if err := s.refresh(ctx); err != nil {
			s.token = nil
			s.delegated = false
			return err
		}
		return nil
	}
	return s.authorize(ctx, needDelegated)
}

// authorize acquires a fresh token. Must hold mu.
func (s *Session) authorize(ctx context.Context, delegated bool) error {
	if !delegated {
		tok, err := s.anon.Token(ctx)
		if err != nil {
			return fmt.Errorf("client credentials authorization failed: %w", err)
		}
		s.set(tok, false)
		s.logger.Debug("Authorized with app credentials")
		return nil
	}

	if s.codeSource == nil {
		return errors.New("delegated authorization required but no interactive login is available")
	}
	state := uuid.NewString()
	code, err := s.codeSource.Code(ctx, s.oauth.AuthCodeURL(state), state)
	if err != nil {
		return fmt.Errorf("user authorization failed: %w", err)
	}
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("authorization code exchange failed: %w", err)
	}
	s.set(tok, true)
	s.persist()
	s.logger.Debug("Authorized on behalf of user")
	return nil
}

// refresh renews the access token. Must hold mu.
func (s *Session) refresh(ctx context.Context) error {
	if s.token.RefreshToken == "" {
		// App tokens carry no refresh token; re-issue instead.
		return s.authorize(ctx, s.delegated)
	}

	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: s.token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = s.token.RefreshToken
	}
	s.set(tok, s.delegated)
	s.persist()
	return nil
}

func (s *Session) set(tok *oauth2.Token, delegated bool) {
	s.token = tok
	s.delegated = delegated
	if tok.Expiry.IsZero() {
		s.expiry = s.now().Add(time.Hour - expirySkew)
	} else {
		s.expiry = tok.Expiry.Add(-expirySkew)
	}
}

func (s *Session) persist() {
	if err := s.store.Save(s.token.RefreshToken); err != nil {
		s.logger.Warn("Failed to save refresh token: %v", err)
	}
}
