// Package consoleauth implements the optional shared-secret gate on
// console sessions: a bcrypt hash configured on the manager, checked
// against an "AUTH <token>\n" line sent as the first command of a
// session.
package consoleauth

import "golang.org/x/crypto/bcrypt"

// Gate decides whether console sessions must authenticate, and
// validates the token they send if so. A nil *Gate (zero value not
// used directly — see NoAuth) means authentication is not required.
type Gate struct {
	hash []byte
}

// NoAuth returns a Gate that never requires authentication, for a
// manager started without -secret-hash.
func NoAuth() *Gate { return &Gate{} }

// New returns a Gate that requires every session to present a token
// matching bcryptHash. The hash is never logged and never echoed back
// to a client — only the bcrypt comparison result crosses that
// boundary.
func New(bcryptHash string) *Gate {
	return &Gate{hash: []byte(bcryptHash)}
}

// Required reports whether a session must authenticate before any
// other command is dispatched.
func (g *Gate) Required() bool {
	return g != nil && len(g.hash) > 0
}

// Check reports whether token matches the configured secret. It
// always returns true when no secret is configured, so a caller can
// skip Required()'s branch if it prefers to call Check unconditionally.
func (g *Gate) Check(token string) bool {
	if !g.Required() {
		return true
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
}
