package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Common errors for the login flow.
var (
	// ErrInvalidCredentials is returned for any credential mismatch.
	// It is deliberately the same for wrong username and wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrRateLimited is returned when too many login attempts are made.
	ErrRateLimited = errors.New("too many login attempts, try again later")
)

// Session is one authenticated login: an opaque token mapped to a username
// and its issuance time.
type Session struct {
	ID       string
	Username string
	IssuedAt time.Time
}

// StoreConfig holds configuration for the session store.
type StoreConfig struct {
	// Credential is the single tenant credential logins are checked
	// against. Required.
	Credential Credential

	// TTL is how long a session remains resolvable after issuance.
	// Default: 30 days.
	TTL time.Duration

	// Capacity is the maximum number of live sessions. Logging in beyond
	// capacity evicts the oldest session. Default: 100.
	Capacity int

	// LoginPerMinute is the rate limit for login attempts.
	// Default: 5 per minute.
	LoginPerMinute int

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time
}

// Store is the capacity- and time-bounded mapping from session tokens to
// authenticated identities. Sessions exist only in memory; a restart logs
// everyone out.
type Store struct {
	mu sync.Mutex

	// sessions maps token to session.
	sessions map[string]*Session

	// order holds tokens in issuance order, oldest first, for capacity
	// eviction.
	order []string

	config  StoreConfig
	limiter *rate.Limiter
}

// NewStore creates a session store with the given configuration.
func NewStore(config StoreConfig) *Store {
	if config.TTL == 0 {
		config.TTL = 30 * 24 * time.Hour
	}
	if config.Capacity == 0 {
		config.Capacity = 100
	}
	if config.LoginPerMinute == 0 {
		config.LoginPerMinute = 5
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	return &Store{
		sessions: make(map[string]*Session),
		config:   config,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.LoginPerMinute)), config.LoginPerMinute),
	}
}

// Login checks the presented credentials against the configured tenant
// credential and, on success, mints a new session token. Beyond capacity
// the oldest session is evicted so the store never exceeds its bound.
func (s *Store) Login(username, password string) (string, error) {
	if !s.limiter.Allow() {
		log.Printf("auth: login rate limited")
		return "", ErrRateLimited
	}

	if !s.config.Credential.Match(username, password) {
		log.Printf("auth: login failed")
		return "", ErrInvalidCredentials
	}

	token := newSessionToken()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = &Session{
		ID:       token,
		Username: username,
		IssuedAt: s.config.TimeNow(),
	}
	s.order = append(s.order, token)

	// Evict oldest sessions beyond capacity. Entries in order may already
	// be gone from the map (removed lazily on an expired Check); those
	// are skipped without counting as evictions.
	for len(s.sessions) > s.config.Capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if _, live := s.sessions[oldest]; live {
			delete(s.sessions, oldest)
			log.Printf("auth: session capacity reached, evicted oldest session")
		}
	}

	log.Printf("auth: login succeeded, session issued")
	return token, nil
}

// Check resolves a session token to its username. Returns false if the
// token is unknown or its age has reached the TTL; expiry is evaluated
// lazily here, and an expired token is removed so it can never resolve
// again.
func (s *Store) Check(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return "", false
	}

	age := s.config.TimeNow().Sub(session.IssuedAt)
	if age >= s.config.TTL {
		delete(s.sessions, token)
		log.Printf("auth: session expired (age %v)", age)
		return "", false
	}

	return session.Username, true
}

// Len returns the number of sessions currently held, including any that
// have expired but not yet been looked up.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.config.TTL
}

// newSessionToken mints a cryptographically random session token.
func newSessionToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; if it does,
		// sessions cannot be issued safely.
		panic("auth: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
