// Package credential persists the logged-in session in the OS keyring.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/agriassist/internal/model"
)

const (
	serviceName = "agriassist"
	sessionKey  = "session"
)

// ErrNoSession is returned when no session has been saved.
var ErrNoSession = errors.New("no saved session")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/agriassist/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("agriassist-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Vault stores one session.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a Vault backed by the system keyring.
func Open() (*Vault, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an existing keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// SaveSession stores sess, replacing any previous session.
func (v *Vault) SaveSession(sess *model.Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	err = v.ring.Set(keyring.Item{
		Key:         sessionKey,
		Data:        data,
		Label:       "AgriAssist session",
		Description: "AgriAssist API token for " + sess.Email,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", sessionKey, err)
	}

	return nil
}

// LoadSession returns the saved session or ErrNoSession.
func (v *Vault) LoadSession() (*model.Session, error) {
	item, err := v.ring.Get(sessionKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", sessionKey, err)
	}

	var sess model.Session
	if err := json.Unmarshal(item.Data, &sess); err != nil {
		return nil, fmt.Errorf("decoding saved session: %w", err)
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("loading saved session: %w", err)
	}

	return &sess, nil
}

// DeleteSession removes the saved session. Deleting when nothing is saved
// is not an error.
func (v *Vault) DeleteSession() error {
	err := v.ring.Remove(sessionKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", sessionKey, err)
	}
	return nil
}
