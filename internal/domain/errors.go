package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTopicNotFound indicates the requested topic is not in the bank.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrPlayerNotFound is returned when a user acts before signing in.
	ErrPlayerNotFound = errors.New("player not signed in")
	// ErrNoActiveQuiz is returned when a quiz action arrives without a started session.
	ErrNoActiveQuiz = errors.New("no active quiz")
	// ErrInputLocked rejects a submission while feedback is awaiting acknowledgement.
	ErrInputLocked = errors.New("input locked")
	// ErrNotLocked rejects an acknowledgement when no answer has been submitted.
	ErrNotLocked = errors.New("no answer awaiting acknowledgement")
	// ErrQuizFinished rejects actions on a completed or quit session.
	ErrQuizFinished = errors.New("quiz already finished")
	// ErrNotCompleted rejects a retry on a session that has not been completed.
	ErrNotCompleted = errors.New("quiz not completed")

	// ErrInvalidCredentials is the cause of an AuthError on a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is the cause of an AuthError when signing up with a known email.
	ErrEmailTaken = errors.New("an account with this email already exists")
	// ErrProviderCancelled is the cause of an AuthError when federated sign-in is abandoned.
	ErrProviderCancelled = errors.New("sign-in cancelled")
	// ErrWeakPassword is the cause of an AuthError when a new password is too short.
	ErrWeakPassword = errors.New("password must be at least 6 characters")
	// ErrInvalidToken is the cause of an AuthError on an expired or forged session token.
	ErrInvalidToken = errors.New("invalid session token")
)

// AuthError reports a failed identity operation.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StoreError reports a failed document read or write.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ValidationError reports a malformed stored document field. Decoders
// substitute a default and keep going.
type ValidationError struct {
	Path   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid document %s: field %q %s", e.Path, e.Field, e.Reason)
}
