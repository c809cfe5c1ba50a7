package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session holds the token pair and metadata for one authenticated user.
// The access and refresh tokens travel together: a stored session always
// has both or neither.
type Session struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	UserID          string    `json:"user_id"`
	PackageName     string    `json:"package_name"` // application key scoping requests to a tenant
	IsPremium       bool      `json:"is_premium"`
	RemainingCredit int       `json:"remaining_credit"`
	DeviceID        string    `json:"device_id"` // unique install ID (UUID), generated at login
	SavedAt         time.Time `json:"saved_at,omitempty"`
}

// Active returns true if the session carries an access token.
func (s *Session) Active() bool {
	return s != nil && s.AccessToken != ""
}

// AccessExpiresAt returns the expiry of the access token, read from its
// unverified JWT exp claim. Returns the zero time when the token is absent
// or not a JWT. Callers must treat this as a scheduling hint only, never as
// an authorization decision.
func (s *Session) AccessExpiresAt() time.Time {
	if s == nil || s.AccessToken == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
