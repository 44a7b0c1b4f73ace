package api

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when a payload does not have the expected shape.
var ErrMalformed = errors.New("malformed payload")

// AuthError indicates that the bearer token was rejected. It is returned
// when the backend answers 401.
type AuthError struct {
	Method  string
	Path    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error on %s %s: %s", e.Method, e.Path, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// APIError is a non-2xx answer, or a 2xx answer whose envelope reports
// success=false.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf(
		"api error (%d) on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Message,
	)
}
