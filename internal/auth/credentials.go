package auth

import "crypto/subtle"

// Credentials holds the fixed admin username/password pair. Not a user
// database: the gateway has exactly one operator identity.
type Credentials struct {
	Username string
	Password string
}

// Verify reports whether the supplied pair matches, comparing both fields in
// constant time so response timing leaks nothing about partial matches.
func (c Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	return userOK && passOK
}
