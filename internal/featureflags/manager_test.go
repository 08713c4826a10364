package featureflags

import (
	"testing"

	"agora/internal/models"

	"github.com/stretchr/testify/assert"
)

var member = models.Account(1)

func TestEnabled_Switches(t *testing.T) {
	m := NewManager("a=on,b=off,c=TRUE,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, member), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, member), name)
	}
	// On flags do not need a principal.
	assert.True(t, m.Enabled("A", models.Principal{}))
}

func TestEnabled_Rollout(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,over=250%")

	assert.True(t, m.Enabled("always", member))
	assert.True(t, m.Enabled("over", member))
	assert.False(t, m.Enabled("never", member))
	assert.False(t, m.Enabled("canary", models.Principal{}))

	visitor := models.AnonymousSession("0d5c7a8e-5f3b-4a51-9a0e-4e2f7c1d9b11")
	first := m.Enabled("canary", visitor)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", visitor), "rollout must be stable per principal")
	}
}

func TestEnabled_RolloutSpreadsPrincipals(t *testing.T) {
	m := NewManager("half=50%")

	enabled := 0
	for id := uint(1); id <= 1000; id++ {
		if m.Enabled("half", models.Account(id)) {
			enabled++
		}
	}
	assert.InDelta(t, 500, enabled, 150)
}

func TestNewManager_RejectsMalformedEntries(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off,=on,w=sometimes ")

	assert.Equal(t, "x=on,y=20%,z=off", m.String())
	assert.Equal(t, []string{"bad", "=on", "w=sometimes"}, m.Rejected())
	assert.Len(t, m.Snapshot(models.Account(123)), 3)
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(InvalidationStream, member))
	assert.Empty(t, m.Snapshot(member))
	assert.Empty(t, m.Rejected())
	assert.Empty(t, m.String())
}
