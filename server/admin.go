package server

import (
	"crypto/subtle"
	"net/http"
)

// adminCookieName is the cookie granting live-channel access. Its value is
// the admin password.
const adminCookieName = "sparql-proxy-token"

// GET /admin
//
// Reached through basic auth (see the Authorizer). Sets the admin cookie
// and serves the dashboard with the admin controls enabled.
func (s *server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    s.AdminToken,
		Path:     "/",
		HttpOnly: true,
	})
	s.render(w, true)
}

// isAdmin reports whether the request carries a valid admin cookie.
func (s *server) isAdmin(r *http.Request) bool {
	if s.AdminToken == "" {
		return false
	}
	c, err := r.Cookie(adminCookieName)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(s.AdminToken)) == 1
}
