package oidc

type ValidationErrorCode string

const (
	ValidationErrorInvalidToken     ValidationErrorCode = "invalid_token"
	ValidationErrorExpired          ValidationErrorCode = "expired_token"
	ValidationErrorNotYetValid      ValidationErrorCode = "not_yet_valid"
	ValidationErrorClaimMismatch    ValidationErrorCode = "claim_mismatch"
	ValidationErrorMalformedToken   ValidationErrorCode = "malformed_token"
	ValidationErrorIssuerMismatch   ValidationErrorCode = "issuer_mismatch"
	ValidationErrorAudienceMismatch ValidationErrorCode = "audience_mismatch"
	ValidationErrorTypeMismatch     ValidationErrorCode = "type_mismatch"
	ValidationErrorAZPMismatch      ValidationErrorCode = "authorized_party_mismatch"
	// ValidationErrorUnavailable means validation could not finish, for example because
	// the request context ended while keys were being fetched. It says nothing about the token.
	ValidationErrorUnavailable ValidationErrorCode = "validation_unavailable"
)

type ValidationError struct {
	Code        ValidationErrorCode
	Description string
	Err         error
}

func (e *ValidationError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(code ValidationErrorCode, description string, err error) *ValidationError {
	return &ValidationError{Code: code, Description: description, Err: err}
}

// TokenRejected reports whether the error describes a problem with the presented
// token itself, as opposed to a failure of the validation machinery.
func (e *ValidationError) TokenRejected() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case ValidationErrorInvalidToken,
		ValidationErrorExpired,
		ValidationErrorNotYetValid,
		ValidationErrorClaimMismatch,
		ValidationErrorMalformedToken,
		ValidationErrorIssuerMismatch,
		ValidationErrorAudienceMismatch,
		ValidationErrorTypeMismatch,
		ValidationErrorAZPMismatch:
		return true
	default:
		return false
	}
}
