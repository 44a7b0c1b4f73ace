package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nhle/agriassist/internal/model"
)

// Credentials is the body of POST /auth/login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session. The token and user may sit
// either next to `success` or under `data`.
func (c *Client) Login(ctx context.Context, creds Credentials) (*model.Session, error) {
	env, err := c.do(ctx, http.MethodPost, "/auth/login", creds)
	if err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", creds.Email, err)
	}

	token, user := env.Token, env.User
	if token == "" && len(env.Data) > 0 {
		var nested struct {
			Token string          `json:"token"`
			User  json.RawMessage `json:"user"`
		}
		if err := json.Unmarshal(env.Data, &nested); err == nil {
			token, user = nested.Token, nested.User
		}
	}

	if token == "" {
		return nil, fmt.Errorf("logging in as %s: %w: no token in response", creds.Email, ErrMalformed)
	}

	var u rawUser
	if err := json.Unmarshal(user, &u); err != nil || u.id() == "" {
		return nil, fmt.Errorf("logging in as %s: %w: no user in response", creds.Email, ErrMalformed)
	}

	role := model.Role(u.Role)
	if role == "" {
		role = model.RoleUser
	}

	sess := &model.Session{
		UserID: u.id(),
		Token:  token,
		Role:   role,
		Name:   u.Name,
		Email:  u.Email,
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", creds.Email, err)
	}
	return sess, nil
}
