package model

import (
	"errors"
	"fmt"
)

// ErrInvalidSession is returned when a session is missing the identity
// fields required to talk to the backend.
var ErrInvalidSession = errors.New("invalid session")

// Role identifies which marketplace experience a session belongs to.
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// Session is the authenticated identity context. Every other component
// is scoped to a single session and is torn down when it changes.
type Session struct {
	// UserID is the backend identifier of the logged-in user.
	UserID string `json:"user_id"`

	// Token is the bearer token used for REST and the push channel.
	Token string `json:"token"`

	// Role is the marketplace role of the user.
	Role Role `json:"role"`

	// Name and Email are the profile fields returned at login.
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Validate checks that s carries a usable identity.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if s.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidSession)
	}
	if s.Token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidSession)
	}
	if !s.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidSession, s.Role)
	}
	return nil
}

// Same reports whether s and other describe the same identity.
func (s *Session) Same(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.UserID == other.UserID && s.Token == other.Token
}
