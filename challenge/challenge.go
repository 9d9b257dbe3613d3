// Package challenge models the OAuth 2.0 Bearer token failures of RFC 6750 and
// renders them as WWW-Authenticate header values.
package challenge

import (
	"errors"
	"slices"
	"strings"
)

// Kind identifies one of the Bearer token failure conditions.
type Kind int

const (
	// KindMissingAuthentication indicates that no credential was presented.
	KindMissingAuthentication Kind = iota + 1
	// KindInvalidRequest indicates a malformed authentication request.
	KindInvalidRequest
	// KindInvalidToken indicates a credential that is present but invalid or expired.
	KindInvalidToken
	// KindInsufficientScope indicates a valid credential lacking a required scope.
	KindInsufficientScope
)

// Kinds returns every defined Kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindMissingAuthentication, KindInvalidRequest, KindInvalidToken, KindInsufficientScope}
}

// String returns a stable snake_case name for the kind.
func (k Kind) String() string {
	switch k {
	case KindMissingAuthentication:
		return "missing_authentication"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInvalidToken:
		return "invalid_token"
	case KindInsufficientScope:
		return "insufficient_scope"
	default:
		return "unknown"
	}
}

// Code returns the RFC 6750 error code rendered for the kind. MissingAuthentication has none.
func (k Kind) Code() string {
	switch k {
	case KindInvalidRequest, KindInvalidToken, KindInsufficientScope:
		return k.String()
	default:
		return ""
	}
}

// Error is an immutable Bearer token failure. Values are created through the
// package constructors and travel through handlers as plain errors.
type Error struct {
	kind        Kind
	realm       string
	scope       []string
	back        string
	description string
}

// MissingAuthentication reports that the request carried no credential. back is
// the post-authentication redirect target and is never rendered into the challenge.
func MissingAuthentication(realm, back string, scope []string) error {
	return &Error{kind: KindMissingAuthentication, realm: realm, back: back, scope: cloneScope(scope)}
}

// InvalidRequest reports a malformed authentication request.
func InvalidRequest(realm string, scope []string, description string) error {
	return &Error{kind: KindInvalidRequest, realm: realm, scope: cloneScope(scope), description: description}
}

// InvalidToken reports a credential that is expired, revoked or otherwise invalid.
func InvalidToken(realm string, scope []string, description string) error {
	return &Error{kind: KindInvalidToken, realm: realm, scope: cloneScope(scope), description: description}
}

// InsufficientScope reports a valid credential that lacks the required scope.
func InsufficientScope(realm string, scope []string, description string) error {
	return &Error{kind: KindInsufficientScope, realm: realm, scope: cloneScope(scope), description: description}
}

// As recovers an *Error from err, following wrapped errors.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "challenge: <nil>"
	}
	var b strings.Builder
	b.WriteString("challenge: ")
	b.WriteString(e.kind.String())
	if e.description != "" {
		b.WriteString(": ")
		b.WriteString(e.description)
	}
	return b.String()
}

// Kind returns the failure condition.
func (e *Error) Kind() Kind {
	if e == nil {
		return 0
	}
	return e.kind
}

// Realm returns the protection space the failure applies to.
func (e *Error) Realm() string {
	if e == nil {
		return ""
	}
	return e.realm
}

// Scope returns a copy of the scope tokens, or nil when none were supplied.
func (e *Error) Scope() []string {
	if e == nil {
		return nil
	}
	return cloneScope(e.scope)
}

// Back returns the post-authentication redirect target. Only MissingAuthentication carries one.
func (e *Error) Back() string {
	if e == nil {
		return ""
	}
	return e.back
}

// Description returns the human readable failure description.
func (e *Error) Description() string {
	if e == nil {
		return ""
	}
	return e.description
}

func cloneScope(scope []string) []string {
	if scope == nil {
		return nil
	}
	return slices.Clone(scope)
}
