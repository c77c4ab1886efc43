package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a path or key holds no value.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrForbidden is returned when a non-owner tries to change a quiz.
	ErrForbidden = errors.New("only the quiz owner can modify it")

	// ErrValidation is the parent of every caller-input error.
	ErrValidation = errors.New("invalid request")
	// ErrMalformedSubmission indicates the submission payload could not be parsed.
	ErrMalformedSubmission = invalid("malformed submission")
	// ErrMissingQuizID indicates a submission or result without a quiz id.
	ErrMissingQuizID = invalid("missing quiz id")
	// ErrQuizMismatch indicates the submission targets another quiz than the route.
	ErrQuizMismatch = invalid("submission quiz id does not match")
	// ErrMissingResultID indicates a stored result blob without an id.
	ErrMissingResultID = invalid("missing result id")
	// ErrInvalidQuiz indicates a quiz that breaks a structural invariant.
	ErrInvalidQuiz = invalid("invalid quiz")

	// ErrInvalidTransition is returned when an action does not fit the current phase.
	ErrInvalidTransition = errors.New("action not allowed in current phase")
	// ErrResourcesNotReady blocks starting before media prefetch settled.
	ErrResourcesNotReady = errors.New("quiz resources are still loading")
	// ErrIdentityRequired blocks starting without name and roll number.
	ErrIdentityRequired = errors.New("name and roll number are required")
	// ErrAnswerOutOfRange indicates a selection outside the current question's answers.
	ErrAnswerOutOfRange = errors.New("answer index out of range")
	// ErrSessionClosed is returned once a session has been torn down.
	ErrSessionClosed = errors.New("quiz session closed")
)

// validationError marks caller-input errors so they match ErrValidation.
type validationError struct{ msg string }

func invalid(msg string) error { return &validationError{msg: msg} }

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Is(target error) bool { return target == ErrValidation }
