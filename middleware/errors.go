package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/deicod/bearerauth/challenge"
	"github.com/deicod/bearerauth/config"
	"github.com/elnormous/contenttype"
	"github.com/sirupsen/logrus"
)

const errorCodeServerError = "server_error"

var (
	jsonMediaType     = contenttype.NewMediaType("application/json")
	htmlMediaType     = contenttype.NewMediaType("text/html")
	responseMediaType = []contenttype.MediaType{jsonMediaType, htmlMediaType}
)

// outcome summarizes what writeError sent, for metrics.
type outcome struct {
	code         string
	kind         string
	renderFailed bool
}

// WriteError turns a failure raised by an authentication stage into a response.
// Errors carrying a *challenge.Error get a WWW-Authenticate header and a status
// matching their kind. Anything else, including a challenge that cannot be
// encoded as a header value, becomes a 500 without a challenge. A nil err
// writes nothing. The rejection is reported to cfg.MetricsRecorder.
func WriteError(w http.ResponseWriter, r *http.Request, cfg config.Config, err error) {
	cfg.SetDefaults()
	reject(w, r, cfg, err, now(cfg))
}

// reject writes the response for err and records the failure. Every stage that
// rejects a request goes through it.
func reject(w http.ResponseWriter, r *http.Request, cfg config.Config, err error, start time.Time) {
	if err == nil {
		return
	}
	result := writeError(w, r, cfg, err)
	record(r.Context(), cfg, config.MetricsEvent{
		Outcome:      config.MetricsOutcomeFailure,
		ErrorCode:    result.code,
		Kind:         result.kind,
		RenderFailed: result.renderFailed,
		Duration:     now(cfg).Sub(start),
	})
}

func record(ctx context.Context, cfg config.Config, event config.MetricsEvent) {
	if cfg.MetricsRecorder == nil {
		return
	}
	event.Issuer = cfg.Issuer
	cfg.MetricsRecorder.RecordValidation(ctx, event)
}

func now(cfg config.Config) time.Time {
	if cfg.Now != nil {
		return cfg.Now()
	}
	return time.Now()
}

func writeError(w http.ResponseWriter, r *http.Request, cfg config.Config, err error) outcome {
	log := cfg.Logger.WithField("path", r.URL.Path)

	authErr, ok := challenge.As(err)
	if !ok {
		log.WithError(err).Warn("bearer authentication failed")
		writeBody(w, cfg, http.StatusInternalServerError, errorCodeServerError, "authentication error")
		return outcome{code: errorCodeServerError}
	}

	code := bodyCode(authErr.Kind())
	kind := authErr.Kind().String()
	log = log.WithFields(logrus.Fields{"realm": authErr.Realm(), "kind": kind})

	if authErr.Kind() == challenge.KindMissingAuthentication && cfg.LoginURL != "" && prefersHTML(r) {
		target := loginRedirect(cfg, authErr.Back())
		log.WithField("location", target).Debug("redirecting unauthenticated request to login")
		http.Redirect(w, r, target, http.StatusFound)
		return outcome{code: code, kind: kind}
	}

	value, renderErr := authErr.Challenge()
	if renderErr != nil {
		log.WithError(renderErr).Error("bearer challenge could not be rendered")
		writeBody(w, cfg, http.StatusInternalServerError, errorCodeServerError, "authentication error")
		return outcome{code: code, kind: kind, renderFailed: true}
	}

	status := statusFor(cfg, authErr.Kind())
	log.WithField("status", status).Debug("bearer challenge issued")
	w.Header().Set(challenge.HeaderName, value)
	writeBody(w, cfg, status, code, authErr.Description())
	return outcome{code: code, kind: kind}
}

func statusFor(cfg config.Config, kind challenge.Kind) int {
	switch kind {
	case challenge.KindInvalidRequest:
		return http.StatusBadRequest
	case challenge.KindInsufficientScope:
		return http.StatusForbidden
	case challenge.KindMissingAuthentication, challenge.KindInvalidToken:
		return cfg.UnauthorizedStatusCode
	default:
		return http.StatusInternalServerError
	}
}

func bodyCode(kind challenge.Kind) string {
	if code := kind.Code(); code != "" {
		return code
	}
	return kind.String()
}

func writeBody(w http.ResponseWriter, cfg config.Config, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := cfg.ErrorResponseBuilder(code, description)
	_ = json.NewEncoder(w).Encode(body)
}

func prefersHTML(r *http.Request) bool {
	mediaType, _, err := contenttype.GetAcceptableMediaType(r, responseMediaType)
	if err != nil {
		return false
	}
	return mediaType.Type == htmlMediaType.Type && mediaType.Subtype == htmlMediaType.Subtype
}

func loginRedirect(cfg config.Config, back string) string {
	target, err := url.Parse(cfg.LoginURL)
	if err != nil || back == "" {
		return cfg.LoginURL
	}
	query := target.Query()
	query.Set(cfg.BackParameter, back)
	target.RawQuery = query.Encode()
	return target.String()
}
