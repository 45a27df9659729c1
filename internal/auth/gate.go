// Package auth provides the admission policies for the broker's two
// connection roles and the bounded session store backing the client role.
//
// The device role presents HTTP Basic credentials on the WebSocket upgrade
// and is checked against a single static credential. The client role logs
// in once over HTTP, receives a session token as a cookie, and presents
// only that cookie on the upgrade.
//
// Security considerations:
//   - All credential comparisons are constant time (subtle for plaintext,
//     bcrypt for hashed), so a failure reveals nothing about which part
//     was wrong.
//   - Session tokens are 32 bytes from crypto/rand.
//   - Sessions are bounded in both lifetime (TTL) and count (capacity
//     with oldest-first eviction).
//   - Login attempts are rate limited.
package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Credential is one statically configured username/password pair.
// When PasswordHash is set it takes precedence over Password.
type Credential struct {
	// Username is the expected account name.
	Username string

	// Password is the expected plaintext password. Only consulted when
	// PasswordHash is empty.
	Password string

	// PasswordHash is a bcrypt hash of the expected password, generated
	// with `doorward hash-password`. Preferred over plaintext.
	PasswordHash string
}

// Match reports whether the presented username and password match this
// credential. Both parts are always compared, in constant time, so the
// result's timing does not reveal which part was wrong.
func (c Credential) Match(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(username)) == 1

	var passOK bool
	if c.PasswordHash != "" {
		// bcrypt.CompareHashAndPassword handles timing-safe comparison.
		passOK = bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
	}

	return userOK && passOK
}
