package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionValidate(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		wantErr bool
	}{
		{"nil", nil, true},
		{"missing user", &Session{Token: "t", Role: RoleUser}, true},
		{"missing token", &Session{UserID: "u1", Role: RoleUser}, true},
		{"bad role", &Session{UserID: "u1", Token: "t", Role: "farmer"}, true},
		{"seller", &Session{UserID: "u1", Token: "t", Role: RoleSeller}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSession)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMessageCounterparty(t *testing.T) {
	m := Message{
		ID:       "m1",
		Sender:   Participant{ID: "U2", Name: "Sita"},
		Receiver: Participant{ID: "U1", Name: "Ram"},
	}

	cp, ok := m.Counterparty("U1")
	require.True(t, ok)
	assert.Equal(t, "U2", cp.ID)

	cp, ok = m.Counterparty("U2")
	require.True(t, ok)
	assert.Equal(t, "U1", cp.ID)

	_, ok = m.Counterparty("U3")
	assert.False(t, ok)
	assert.False(t, m.Involves("U3"))
	assert.Equal(t, "", m.ProductID())
}
