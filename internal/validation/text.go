// Package validation normalises and bounds user-supplied text.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"agora/internal/models"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns s in Unicode NFC form with surrounding whitespace removed.
// Lengths are always measured on the normalised form so that composed and
// decomposed inputs count the same.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Bounded normalises s and checks that its rune length lies in [minLen, maxLen].
// field names the input in the message of the returned validation error.
func Bounded(field, s string, minLen, maxLen int) (string, error) {
	if !utf8.ValidString(s) {
		return "", models.NewValidationError(field + " must be valid UTF-8")
	}
	out := Normalize(s)
	n := utf8.RuneCountInString(out)
	if n < minLen {
		if minLen == 1 {
			return "", models.NewValidationError(field + " is required")
		}
		return "", models.NewValidationError(fmt.Sprintf("%s must be at least %d characters", field, minLen))
	}
	if maxLen > 0 && n > maxLen {
		return "", models.NewValidationError(fmt.Sprintf("%s must be at most %d characters", field, maxLen))
	}
	return out, nil
}

// Limits bounds the lengths of content fields.
type Limits struct {
	PostTitleMax        int
	PostBodyMax         int
	CommentBodyMax      int
	BoardNameMax        int
	BoardDescriptionMax int
}

// DefaultLimits mirrors the column sizes of the content tables.
func DefaultLimits() Limits {
	return Limits{
		PostTitleMax:        200,
		PostBodyMax:         10000,
		CommentBodyMax:      1000,
		BoardNameMax:        100,
		BoardDescriptionMax: 500,
	}
}

// PostTitle validates a post title.
func (l Limits) PostTitle(s string) (string, error) {
	return Bounded("title", s, 1, l.PostTitleMax)
}

// PostBody validates a post body.
func (l Limits) PostBody(s string) (string, error) {
	return Bounded("body", s, 1, l.PostBodyMax)
}

// CommentBody validates a comment body.
func (l Limits) CommentBody(s string) (string, error) {
	return Bounded("comment", s, 1, l.CommentBodyMax)
}

// BoardName validates a board name.
func (l Limits) BoardName(s string) (string, error) {
	return Bounded("board name", s, 1, l.BoardNameMax)
}

// BoardDescription validates an optional board description.
func (l Limits) BoardDescription(s string) (string, error) {
	return Bounded("description", s, 0, l.BoardDescriptionMax)
}
