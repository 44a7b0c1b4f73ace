// Package loginform asks for marketplace credentials on the terminal.
package loginform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/agriassist/internal/api"
)

// New builds the login form writing into creds. A prefilled email is kept
// as the default.
func New(creds *api.Credentials) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("AgriAssist").
				Description("Sign in with your marketplace account."),
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&creds.Email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&creds.Password).
				Validate(validatePassword),
		),
	)
}

// Prompt runs the login form and returns the entered credentials.
func Prompt(email string) (api.Credentials, error) {
	creds := api.Credentials{Email: email}
	if err := New(&creds).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return api.Credentials{}, fmt.Errorf("login cancelled: %w", err)
		}
		return api.Credentials{}, fmt.Errorf("reading credentials: %w", err)
	}
	creds.Email = strings.TrimSpace(creds.Email)
	return creds, nil
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email is required")
	}
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return errors.New("enter a valid email address")
	}
	return nil
}

func validatePassword(s string) error {
	if s == "" {
		return errors.New("password is required")
	}
	return nil
}
