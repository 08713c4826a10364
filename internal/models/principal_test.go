package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Principal
		want bool
	}{
		{"same account", Account(7), Account(7), true},
		{"different accounts", Account(7), Account(8), false},
		{"same session", AnonymousSession("tok"), AnonymousSession("tok"), true},
		{"account never equals session", Account(7), AnonymousSession("7"), false},
		{"zero value equals nothing", Principal{}, Principal{}, false},
		{"empty session token", AnonymousSession(""), AnonymousSession(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a))
		})
	}
}

func TestPrincipal_Accessors(t *testing.T) {
	id, ok := Account(42).AccountID()
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
	_, ok = AnonymousSession("tok").AccountID()
	assert.False(t, ok)

	tok, ok := AnonymousSession("tok").SessionToken()
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
	_, ok = Account(1).SessionToken()
	assert.False(t, ok)

	assert.False(t, Principal{Kind: PrincipalAccount, Ref: "0"}.Valid())
	assert.Equal(t, "session:abcdefgh", AnonymousSession("abcdefghijkl").String())
	assert.Equal(t, "account:3", Account(3).String())
}

func TestPrincipal_ViewHidesSessionToken(t *testing.T) {
	token := "8c1f7d36-0f0e-4a3e-9b1c-6a9d2f5e4c21"
	view := AnonymousSession(token).View()
	assert.Equal(t, PrincipalSession, view.Kind)
	assert.True(t, strings.HasPrefix(view.Handle, "anon-"))
	assert.NotContains(t, view.Handle, token[:8])
	assert.Equal(t, view, AnonymousSession(token).View(), "handles are stable")
	assert.NotEqual(t, view, AnonymousSession(token+"x").View())

	assert.Equal(t, AuthorView{Kind: PrincipalAccount, Handle: "9"}, Account(9).View())

	raw, err := json.Marshal(ContentFromComment(&Comment{ID: 1, Body: "hi", Author: AnonymousSession(token)}))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), token)
}

func TestStyle(t *testing.T) {
	assert.True(t, StyleLike.Supports(DirectionLike))
	assert.False(t, StyleLike.Supports(DirectionUp))
	assert.True(t, StyleVote.Supports(DirectionDown))
	assert.False(t, StyleVote.Supports(DirectionLike))
	assert.Equal(t, CounterVotes, StyleVote.Counter())
	assert.Equal(t, int64(-1), DirectionDown.Weight())

	s, err := ParseStyle("")
	require.NoError(t, err)
	assert.Equal(t, StyleLike, s)
	_, err = ParseStyle("clap")
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestAppError_Kinds(t *testing.T) {
	err := NewConflictError("lost race", ErrStoreUnavailable)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, KindInvalidInput, KindOf(NewInvalidDirectionError(DirectionUp, StyleLike)))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
}
