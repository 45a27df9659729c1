package auth

import (
	"testing"
	"time"
)

// testStore builds a store with a controllable clock and a generous rate
// limit so tests never trip it accidentally.
func testStore(t *testing.T, capacity int, now *time.Time) *Store {
	t.Helper()
	return NewStore(StoreConfig{
		Credential:     Credential{Username: "tenant", Password: "hunter2"},
		Capacity:       capacity,
		LoginPerMinute: 100000,
		TimeNow:        func() time.Time { return *now },
	})
}

// TestLoginAndCheck verifies the basic login/check round trip.
func TestLoginAndCheck(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := testStore(t, 100, &now)

	token, err := store.Login("tenant", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty session token")
	}

	username, ok := store.Check(token)
	if !ok {
		t.Fatal("expected session to resolve")
	}
	if username != "tenant" {
		t.Errorf("expected username tenant, got %q", username)
	}
}

// TestLoginRejectsBadCredentials verifies wrong username and wrong password
// fail with the same error, leaving no oracle.
func TestLoginRejectsBadCredentials(t *testing.T) {
	now := time.Now()
	store := testStore(t, 100, &now)

	_, errUser := store.Login("intruder", "hunter2")
	_, errPass := store.Login("tenant", "wrong")

	if errUser != ErrInvalidCredentials || errPass != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for both, got %v and %v", errUser, errPass)
	}
	if store.Len() != 0 {
		t.Errorf("expected no sessions after failed logins, got %d", store.Len())
	}
}

// TestCheckUnknownToken verifies unknown tokens do not resolve.
func TestCheckUnknownToken(t *testing.T) {
	now := time.Now()
	store := testStore(t, 100, &now)

	if _, ok := store.Check("no-such-token"); ok {
		t.Error("expected unknown token not to resolve")
	}
}

// TestSessionTTLBoundary verifies a session resolves up to 30 days minus a
// second after issuance and resolves to none at exactly 30 days.
func TestSessionTTLBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := testStore(t, 100, &now)

	token, err := store.Login("tenant", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	ttl := 30 * 24 * time.Hour

	now = now.Add(ttl - time.Second)
	if _, ok := store.Check(token); !ok {
		t.Error("expected session to resolve one second before the TTL")
	}

	now = now.Add(time.Second)
	if _, ok := store.Check(token); ok {
		t.Error("expected session not to resolve at exactly the TTL")
	}

	// Expired tokens are removed and never resolve again, even if the
	// clock were to move backwards.
	now = now.Add(-time.Hour)
	if _, ok := store.Check(token); ok {
		t.Error("expected expired session to stay unresolvable")
	}
}

// TestCapacityEviction verifies the session beyond capacity evicts exactly
// the oldest session and nothing else.
func TestCapacityEviction(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := testStore(t, 100, &now)

	tokens := make([]string, 0, 101)
	for i := 0; i < 101; i++ {
		token, err := store.Login("tenant", "hunter2")
		if err != nil {
			t.Fatalf("Login %d failed: %v", i, err)
		}
		tokens = append(tokens, token)
		now = now.Add(time.Second)
	}

	if store.Len() != 100 {
		t.Errorf("expected 100 live sessions, got %d", store.Len())
	}
	if _, ok := store.Check(tokens[0]); ok {
		t.Error("expected the oldest session to be evicted")
	}
	for i := 1; i < 101; i++ {
		if _, ok := store.Check(tokens[i]); !ok {
			t.Errorf("expected session %d to survive eviction", i)
		}
	}
}

// TestCapacityEvictionSkipsExpired verifies stale order entries from lazy
// expiry do not count as capacity evictions.
func TestCapacityEvictionSkipsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := testStore(t, 2, &now)

	first, _ := store.Login("tenant", "hunter2")

	// Expire the first session and remove it via a lazy check.
	now = now.Add(31 * 24 * time.Hour)
	if _, ok := store.Check(first); ok {
		t.Fatal("expected first session to be expired")
	}

	second, _ := store.Login("tenant", "hunter2")
	third, _ := store.Login("tenant", "hunter2")
	fourth, _ := store.Login("tenant", "hunter2")

	// Capacity 2: the fourth login must evict the second (the oldest
	// live session), not trip over the already-gone first.
	if _, ok := store.Check(second); ok {
		t.Error("expected second session to be evicted")
	}
	for name, token := range map[string]string{"third": third, "fourth": fourth} {
		if _, ok := store.Check(token); !ok {
			t.Errorf("expected %s session to survive", name)
		}
	}
}

// TestLoginRateLimit verifies logins beyond the configured rate fail with
// ErrRateLimited.
func TestLoginRateLimit(t *testing.T) {
	now := time.Now()
	store := NewStore(StoreConfig{
		Credential:     Credential{Username: "tenant", Password: "hunter2"},
		LoginPerMinute: 2,
		TimeNow:        func() time.Time { return now },
	})

	// The limiter starts with a full burst of 2.
	for i := 0; i < 2; i++ {
		if _, err := store.Login("tenant", "hunter2"); err != nil {
			t.Fatalf("Login %d failed: %v", i, err)
		}
	}

	if _, err := store.Login("tenant", "hunter2"); err != ErrRateLimited {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

// TestSessionTokensUnique verifies tokens are distinct and opaque.
func TestSessionTokensUnique(t *testing.T) {
	now := time.Now()
	store := testStore(t, 100, &now)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		token, err := store.Login("tenant", "hunter2")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if len(token) != 64 {
			t.Fatalf("expected 64-char hex token, got %d chars", len(token))
		}
		if seen[token] {
			t.Fatal("duplicate session token minted")
		}
		seen[token] = true
	}
}
