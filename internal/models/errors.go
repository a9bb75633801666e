package models

import "errors"

var (
	// ErrNotFound is returned when a rule or alert id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRule is returned when a threshold rule with the same
	// (domain_type, metric, operator, threshold_value) tuple already exists.
	ErrDuplicateRule = errors.New("duplicate threshold rule")
	// ErrTickInProgress is returned when a manual trigger arrives while a
	// scheduled tick is still running.
	ErrTickInProgress = errors.New("alert tick already in progress")
	// ErrSweepInProgress is returned when a token sweep overlaps itself.
	ErrSweepInProgress = errors.New("token sweep already in progress")
)

// ValidationError marks a malformed rule or alert definition, rejected before
// persistence.
type ValidationError struct {
	Reason string
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
