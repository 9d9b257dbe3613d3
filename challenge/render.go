package challenge

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// HeaderName is the response header carrying the rendered challenge.
const HeaderName = "WWW-Authenticate"

// ErrInvalidHeaderValue indicates that a rendered challenge is not a legal header field value.
var ErrInvalidHeaderValue = errors.New("challenge: invalid header value")

// ErrUnknownKind indicates an Error that was not built by one of the package constructors.
var ErrUnknownKind = errors.New("challenge: unknown error kind")

// RenderError describes the byte that made a rendered challenge unusable as a header value.
type RenderError struct {
	Kind   Kind
	Offset int
	Byte   byte
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("challenge: render %s: invalid header value byte %#02x at offset %d", e.Kind, e.Byte, e.Offset)
}

func (e *RenderError) Unwrap() error {
	return ErrInvalidHeaderValue
}

// Render formats e as an RFC 6750 §3 challenge:
//
//	Bearer realm="<realm>" scope="<scopes>"[ error_code="<code>" error_description="<description>"]
//
// Quotes and backslashes are emitted as quoted-pairs. Control characters are
// rejected with a *RenderError rather than being stripped.
func Render(e *Error) (string, error) {
	if e == nil {
		return "", ErrUnknownKind
	}

	var b strings.Builder
	b.WriteString("Bearer realm=")
	writeQuoted(&b, e.realm)
	b.WriteString(" scope=")
	writeQuoted(&b, strings.Join(e.scope, " "))

	switch e.kind {
	case KindMissingAuthentication:
	case KindInvalidRequest, KindInvalidToken, KindInsufficientScope:
		b.WriteString(" error_code=")
		writeQuoted(&b, e.kind.Code())
		b.WriteString(" error_description=")
		writeQuoted(&b, e.description)
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownKind, int(e.kind))
	}

	value := b.String()
	if !httpguts.ValidHeaderFieldValue(value) {
		offset, c := firstInvalidByte(value)
		return "", &RenderError{Kind: e.kind, Offset: offset, Byte: c}
	}
	return value, nil
}

// Challenge renders the receiver. See Render.
func (e *Error) Challenge() (string, error) {
	return Render(e)
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
}

// firstInvalidByte mirrors the field-value rules of httpguts: CTLs other than HTAB, and DEL.
func firstInvalidByte(s string) (int, byte) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < ' ' && c != '\t') || c == 0x7f {
			return i, c
		}
	}
	return -1, 0
}
