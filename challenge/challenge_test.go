package challenge

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustChallenge(t *testing.T, err error) *Error {
	t.Helper()
	e, ok := As(err)
	require.True(t, ok, "expected *Error, got %T", err)
	return e
}

func TestConstructorsProduceOwnKind(t *testing.T) {
	cases := map[Kind]error{
		KindMissingAuthentication: MissingAuthentication("api", "", nil),
		KindInvalidRequest:        InvalidRequest("api", nil, "bad request"),
		KindInvalidToken:          InvalidToken("api", nil, "token expired"),
		KindInsufficientScope:     InsufficientScope("api", nil, "need b"),
	}
	for kind, err := range cases {
		require.Equal(t, kind, mustChallenge(t, err).Kind(), kind.String())
	}
}

func TestConstructorsAcceptAnyInput(t *testing.T) {
	e := mustChallenge(t, MissingAuthentication("", "", nil))
	require.Equal(t, "", e.Realm())
	require.Nil(t, e.Scope())
}

func TestMissingAuthenticationCarriesBack(t *testing.T) {
	e := mustChallenge(t, MissingAuthentication("api", "/reports?id=7", []string{"read"}))
	require.Equal(t, "/reports?id=7", e.Back())
	require.Equal(t, []string{"read"}, e.Scope())
	require.Empty(t, e.Description())

	other := mustChallenge(t, InvalidToken("api", nil, "expired"))
	require.Empty(t, other.Back())
}

func TestErrorIsImmutable(t *testing.T) {
	scope := []string{"a", "b"}
	e := mustChallenge(t, InsufficientScope("svc", scope, "need b"))

	scope[0] = "changed"
	require.Equal(t, []string{"a", "b"}, e.Scope())

	got := e.Scope()
	got[1] = "changed"
	require.Equal(t, []string{"a", "b"}, e.Scope())
}

func TestAsFollowsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", InvalidToken("api", nil, "expired"))

	e, ok := As(wrapped)
	require.True(t, ok)
	require.Equal(t, KindInvalidToken, e.Kind())

	_, ok = As(errors.New("plain"))
	require.False(t, ok)

	_, ok = As(nil)
	require.False(t, ok)
}

func TestErrorMessage(t *testing.T) {
	require.Equal(t, "challenge: invalid_token: token expired", InvalidToken("api", nil, "token expired").Error())
	require.Equal(t, "challenge: missing_authentication", MissingAuthentication("api", "", nil).Error())
}

func TestKindCodes(t *testing.T) {
	require.Empty(t, KindMissingAuthentication.Code())
	require.Equal(t, "invalid_request", KindInvalidRequest.Code())
	require.Equal(t, "invalid_token", KindInvalidToken.Code())
	require.Equal(t, "insufficient_scope", KindInsufficientScope.Code())
	require.Equal(t, "unknown", Kind(0).String())
	require.Empty(t, Kind(42).Code())
}

func TestEveryKindRenders(t *testing.T) {
	for _, kind := range Kinds() {
		e := &Error{kind: kind, realm: "api", description: "d"}
		value, err := e.Challenge()
		require.NoError(t, err, kind.String())
		require.True(t, strings.HasPrefix(value, `Bearer realm="api" scope=""`), value)
	}
}
