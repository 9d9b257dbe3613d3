package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/deicod/bearerauth/challenge"
	"github.com/deicod/bearerauth/config"
	internaloidc "github.com/deicod/bearerauth/internal/oidc"
	"github.com/deicod/bearerauth/tokensource"
	"github.com/deicod/bearerauth/viewer"
)

// NewMiddleware constructs an HTTP middleware enforcing bearer token validation.
// Failed requests receive an RFC 6750 WWW-Authenticate challenge.
func NewMiddleware(cfg config.Config) (func(http.Handler) http.Handler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	validator, err := internaloidc.NewValidator(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	a := &authenticator{
		cfg:       cfg,
		validator: validator,
		sources:   append([]tokensource.Source(nil), cfg.TokenSources...),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := now(cfg)
			ctx, anonymous, err := a.authenticate(r)
			if err != nil {
				reject(w, r, cfg, err, start)
				return
			}

			outcome := config.MetricsOutcomeSuccess
			if anonymous {
				outcome = config.MetricsOutcomeAnonymous
			}
			record(r.Context(), cfg, config.MetricsEvent{Outcome: outcome, Duration: now(cfg).Sub(start)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

// RequireScopes returns a middleware that rejects requests whose viewer lacks any
// of scopes. It expects NewMiddleware to have run earlier in the chain; requests
// without a viewer are treated as unauthenticated. Only rejections are reported
// to cfg.MetricsRecorder, since NewMiddleware already counted the request.
func RequireScopes(cfg config.Config, scopes ...string) func(http.Handler) http.Handler {
	cfg.SetDefaults()
	required := append([]string(nil), scopes...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := now(cfg)
			v, err := viewer.FromContext(r.Context())
			if err != nil {
				reject(w, r, cfg, challenge.MissingAuthentication(cfg.Realm, r.URL.RequestURI(), required), start)
				return
			}
			if err := checkScopes(cfg.Realm, v, required, false); err != nil {
				reject(w, r, cfg, err, start)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type authenticator struct {
	cfg       config.Config
	validator *internaloidc.Validator
	sources   []tokensource.Source
}

// authenticate returns the context for the next handler, or the failure raised
// for the request. Failures are *challenge.Error values unless the pipeline
// itself broke.
func (a *authenticator) authenticate(r *http.Request) (context.Context, bool, error) {
	realm := a.cfg.Realm
	scopes := a.cfg.RequiredScopes

	rawToken, err := extractToken(r, a.sources)
	switch {
	case errors.Is(err, tokensource.ErrNotFound):
		if a.cfg.AllowAnonymousRequests {
			return r.Context(), true, nil
		}
		return nil, false, challenge.MissingAuthentication(realm, r.URL.RequestURI(), scopes)
	case errors.Is(err, tokensource.ErrMalformed):
		return nil, false, challenge.InvalidRequest(realm, scopes, "malformed bearer credential")
	case err != nil:
		return nil, false, fmt.Errorf("middleware: extract token: %w", err)
	}

	validated, err := a.validator.Validate(r.Context(), rawToken)
	if err != nil {
		var vErr *internaloidc.ValidationError
		if errors.As(err, &vErr) && vErr.TokenRejected() {
			return nil, false, challenge.InvalidToken(realm, scopes, vErr.Description)
		}
		return nil, false, fmt.Errorf("middleware: validate token: %w", err)
	}

	v := viewer.FromClaims(validated.Claims)
	if err := checkScopes(realm, v, scopes, a.cfg.RequireAnyScope); err != nil {
		return nil, false, err
	}

	ctx := contextWithClaims(r.Context(), validated.Claims)
	ctx = viewer.WithViewer(ctx, v)
	return ctx, false, nil
}

func checkScopes(realm string, v *viewer.Viewer, required []string, anyOf bool) error {
	if len(required) == 0 {
		return nil
	}
	missing := v.MissingScopes(required...)
	if anyOf {
		if len(missing) < len(required) {
			return nil
		}
		return challenge.InsufficientScope(realm, required, "one of the required scopes is missing")
	}
	if len(missing) == 0 {
		return nil
	}
	return challenge.InsufficientScope(realm, required, "missing scope: "+strings.Join(missing, " "))
}

// extractToken tries each source in order. A malformed credential only wins
// when no later source yields a usable token.
func extractToken(r *http.Request, sources []tokensource.Source) (string, error) {
	var malformed error
	for _, source := range sources {
		token, err := source.Extract(r)
		if err != nil {
			if errors.Is(err, tokensource.ErrNotFound) {
				continue
			}
			if errors.Is(err, tokensource.ErrMalformed) {
				if malformed == nil {
					malformed = err
				}
				continue
			}
			return "", err
		}
		if strings.TrimSpace(token) == "" {
			continue
		}
		return token, nil
	}
	if malformed != nil {
		return "", malformed
	}
	return "", tokensource.ErrNotFound
}
