package help

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/agriassist/internal/keys"
	"github.com/nhle/agriassist/internal/model"
)

func TestViewListsBindings(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)

	v := m.View()
	assert.Contains(t, v, "Keyboard Shortcuts")
	assert.Contains(t, v, "mark all read")
	assert.NotContains(t, v, "Session")
}

func TestViewShowsSession(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)
	m.SetSession(model.Session{UserID: "u1", Token: "tok", Role: model.RoleSeller, Name: "Green Farm"})
	m.SetConnection("connected")

	v := m.View()
	assert.Contains(t, v, "Green Farm (seller)")
	assert.Contains(t, v, "user u1")
	assert.Contains(t, v, "connected")
}
