package config

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deicod/bearerauth/tokensource"
	"github.com/sirupsen/logrus"
)

// Config captures the runtime configuration for the bearer authentication middleware.
type Config struct {
	// Issuer is the base URL of the identity provider and is required.
	Issuer string

	// Realm names the protection space advertised in WWW-Authenticate challenges. Defaults to Issuer.
	Realm string

	// Audiences restricts accepted audience (aud) claims. When empty all audiences are allowed.
	Audiences []string

	// TokenTypes restricts accepted token type (typ) claims. When empty all token types are allowed.
	TokenTypes []string

	// AuthorizedParties restricts accepted authorized party (azp) claims. When empty all parties are allowed.
	AuthorizedParties []string

	// RequiredScopes lists scopes every authenticated request must carry.
	// They are also advertised in the scope attribute of every challenge.
	RequiredScopes []string

	// RequireAnyScope relaxes RequiredScopes so that holding one of them is enough.
	RequireAnyScope bool

	// AllowAnonymousRequests lets requests without a token reach the next handler unauthenticated.
	AllowAnonymousRequests bool

	// LoginURL, when set, receives browsers that presented no credential. The original
	// request URI is passed along in the BackParameter query parameter.
	LoginURL string

	// BackParameter names the query parameter carrying the post-login redirect target.
	BackParameter string

	// TokenSources lists the token extraction strategies, tried in order.
	TokenSources []tokensource.Source

	// ClaimsValidators run after the built-in claim checks succeed.
	ClaimsValidators []ClaimsValidator

	// HTTPClient is an optional client used for discovery and JWKS retrieval.
	HTTPClient *http.Client

	// ClockSkew configures the allowed difference between issuer and service clocks when validating temporal claims.
	ClockSkew time.Duration

	// UnauthorizedStatusCode is used when a request fails authentication.
	UnauthorizedStatusCode int

	// ErrorResponseBuilder allows customizing the response body emitted for authentication errors.
	// The returned value must be JSON serializable.
	ErrorResponseBuilder ErrorResponseBuilder

	// MetricsRecorder receives one event per authentication attempt and one per
	// rejection raised by RequireScopes or WriteError.
	MetricsRecorder MetricsRecorder

	// Logger receives diagnostic output. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// Now, when provided, overrides the source of the current time. Primarily used for testing.
	Now func() time.Time

	allowAnonymousRequestsConfigured bool
	requireAnyScopeConfigured        bool
}

// ClaimsValidator performs additional checks on validated token claims.
type ClaimsValidator func(ctx context.Context, claims map[string]any) error

// ErrorResponseBuilder creates a structured payload for authentication failures.
type ErrorResponseBuilder func(code, description string) any

// DefaultErrorResponseBuilder returns an RFC 6750 inspired response body.
func DefaultErrorResponseBuilder(code, description string) any {
	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	return body
}

// MetricsOutcome classifies an authentication attempt.
type MetricsOutcome string

const (
	MetricsOutcomeSuccess   MetricsOutcome = "success"
	MetricsOutcomeFailure   MetricsOutcome = "failure"
	MetricsOutcomeAnonymous MetricsOutcome = "anonymous"
)

// MetricsEvent describes a single authentication attempt.
type MetricsEvent struct {
	Issuer    string
	Outcome   MetricsOutcome
	ErrorCode string
	// Kind names the challenge kind raised for the request, empty when none was raised.
	Kind string
	// RenderFailed is set when the challenge could not be encoded as a header value.
	RenderFailed bool
	Duration     time.Duration
}

// MetricsRecorder observes authentication attempts.
type MetricsRecorder interface {
	RecordValidation(ctx context.Context, event MetricsEvent)
}

// SetDefaults populates unset configuration options with sensible defaults.
func (c *Config) SetDefaults() {
	if c.Realm == "" {
		c.Realm = c.Issuer
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = 30 * time.Second
	}
	if c.UnauthorizedStatusCode == 0 {
		c.UnauthorizedStatusCode = http.StatusUnauthorized
	}
	if c.ErrorResponseBuilder == nil {
		c.ErrorResponseBuilder = DefaultErrorResponseBuilder
	}
	if len(c.TokenTypes) == 0 {
		c.TokenTypes = []string{"Bearer"}
	}
	if len(c.TokenSources) == 0 {
		c.TokenSources = []tokensource.Source{tokensource.AuthorizationHeader()}
	}
	if c.BackParameter == "" {
		c.BackParameter = "back"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("config: issuer is required")
	}
	if c.LoginURL != "" {
		u, err := url.Parse(c.LoginURL)
		if err != nil {
			return errors.New("config: login_url is not a valid URL")
		}
		if u.Scheme == "" && !strings.HasPrefix(u.Path, "/") {
			return errors.New("config: login_url must be absolute or start with /")
		}
	}
	for _, scope := range c.RequiredScopes {
		if scope == "" || strings.ContainsAny(scope, " \t") {
			return errors.New("config: required scopes must be non-empty and contain no whitespace")
		}
	}
	return nil
}
