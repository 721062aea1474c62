package auth

import (
	"errors"

	"github.com/dmitrijs2005/zappro/internal/common"
)

// Reason classifies why a token was rejected. It is meant for logs and
// metrics; clients only ever see "invalid token".
type Reason string

const (
	ReasonMalformed        Reason = "malformed"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonExpired          Reason = "expired"
	ReasonWrongKind        Reason = "wrong_kind"
)

// TokenError is returned by Service.Verify. It matches common.ErrInvalidToken
// with errors.Is.
type TokenError struct {
	Reason Reason
	Err    error
}

func (e *TokenError) Error() string {
	return common.ErrInvalidToken.Error()
}

func (e *TokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{common.ErrInvalidToken}
	}
	return []error{common.ErrInvalidToken, e.Err}
}

func newTokenError(reason Reason, err error) *TokenError {
	return &TokenError{Reason: reason, Err: err}
}

// ReasonOf extracts the rejection reason from err, or "" when err is not a
// token rejection.
func ReasonOf(err error) Reason {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}
