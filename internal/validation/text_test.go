package validation

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		min   int
		max   int
		want  string
		ok    bool
	}{
		{name: "plain", input: "hello", min: 1, max: 10, want: "hello", ok: true},
		{name: "trimmed", input: "  hello \n", min: 1, max: 10, want: "hello", ok: true},
		{name: "empty required", input: "", min: 1, max: 10, ok: false},
		{name: "whitespace only", input: "   ", min: 1, max: 10, ok: false},
		{name: "empty optional", input: "", min: 0, max: 10, want: "", ok: true},
		{name: "exact max", input: strings.Repeat("a", 10), min: 1, max: 10, want: strings.Repeat("a", 10), ok: true},
		{name: "over max", input: strings.Repeat("a", 11), min: 1, max: 10, ok: false},
		{name: "multibyte counts runes", input: strings.Repeat("한", 10), min: 1, max: 10, want: strings.Repeat("한", 10), ok: true},
		{name: "invalid utf8", input: "\xff\xfe", min: 1, max: 10, ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Bounded("field", tc.input, tc.min, tc.max)
			if !tc.ok {
				require.Error(t, err)
				assert.Equal(t, models.KindInvalidInput, models.KindOf(err))
				assert.True(t, errors.Is(err, models.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeComposesDecomposedInput(t *testing.T) {
	t.Parallel()

	decomposed := "e\u0301"
	assert.Equal(t, "\u00e9", Normalize(decomposed))
	assert.Equal(t, 1, utf8.RuneCountInString(Normalize(decomposed)))

	// Ten decomposed characters are twenty code points but only ten runes once composed.
	_, err := Bounded("title", strings.Repeat(decomposed, 10), 1, 10)
	assert.NoError(t, err)
}

func TestDefaultLimits(t *testing.T) {
	t.Parallel()

	l := DefaultLimits()

	_, err := l.PostTitle(strings.Repeat("t", 200))
	assert.NoError(t, err)
	_, err = l.PostTitle(strings.Repeat("t", 201))
	assert.Error(t, err)

	_, err = l.PostBody(strings.Repeat("b", 10000))
	assert.NoError(t, err)
	_, err = l.PostBody(strings.Repeat("b", 10001))
	assert.Error(t, err)

	_, err = l.CommentBody(strings.Repeat("c", 1000))
	assert.NoError(t, err)
	_, err = l.CommentBody(strings.Repeat("c", 1001))
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)
	assert.Equal(t, "comment must be at most 1000 characters", appErr.Message)

	_, err = l.BoardName(strings.Repeat("n", 101))
	assert.Error(t, err)
	desc, err := l.BoardDescription("")
	assert.NoError(t, err)
	assert.Empty(t, desc)
}
