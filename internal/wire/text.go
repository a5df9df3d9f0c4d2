package wire

import (
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// TextName is the registered type name of Text.
const TextName = "lockstep.text"

// Text is a free-form message carrying a single string.
// The body is quoted on the wire so it may contain any character.
type Text struct {
	Header
	Body string
}

// NewText creates a text message.
func NewText(body string) *Text {
	return &Text{Body: body}
}

// Name returns TextName.
func (t *Text) Name() string {
	return TextName
}

// MarshalFields returns the NFC normalized body as a Go quoted string.
func (t *Text) MarshalFields() (string, error) {
	return strconv.Quote(norm.NFC.String(t.Body)), nil
}

// UnmarshalFields parses a quoted body.
func (t *Text) UnmarshalFields(fields string) error {
	body, err := strconv.Unquote(fields)
	if err != nil {
		return fmt.Errorf("text: %w", err)
	}
	t.Body = body
	return nil
}
