package testutil

import (
	"context"
	"net/http"
	"testing"

	"github.com/deicod/bearerauth/config"
	internaloidc "github.com/deicod/bearerauth/internal/oidc"
	"github.com/stretchr/testify/require"
)

func TestIssuer_SignTokenValidates(t *testing.T) {
	issuer := NewIssuer(t)

	cfg := config.Config{
		Issuer:            issuer.URL(),
		Audiences:         []string{"account"},
		AuthorizedParties: []string{"spa"},
	}
	cfg.SetDefaults()

	validator, err := internaloidc.NewValidator(context.Background(), cfg)
	require.NoError(t, err)

	token := issuer.SignToken(issuer.Claims(map[string]any{"azp": "spa"}))

	validated, err := validator.Validate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "subject", validated.Subject)
}

func TestIssuer_ClaimsOverrides(t *testing.T) {
	issuer := NewIssuer(t)

	claims := issuer.Claims(map[string]any{"sub": "alice", "typ": nil})
	require.Equal(t, issuer.URL(), claims["iss"])
	require.Equal(t, "alice", claims["sub"])
	require.NotContains(t, claims, "typ")
}

func TestIssuer_ExposesJWKS(t *testing.T) {
	issuer := NewIssuer(t)

	resp, err := http.Get(issuer.URL() + "/jwks")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignTokenWithKey_UsesCustomKey(t *testing.T) {
	key := GenerateRSAKey(t, 2048)

	claims := map[string]any{"sub": "subject"}
	token := SignTokenWithKey(t, key, "custom", claims)
	require.NotEmpty(t, token)
}
