package cerrors

import (
	"errors"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly      ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric              ErrorType = "GENERIC_ERROR"
	ErrorTypeTimeout              ErrorType = "TIMEOUT_ERROR"
	ErrorTypeTarget               ErrorType = "TARGET_ERROR"
	ErrorTypeInjector             ErrorType = "INJECTOR_ERROR"
	ErrorTypeRevert               ErrorType = "REVERT_ERROR"
	ErrorTypeScheduling           ErrorType = "SCHEDULING_ERROR"
	ErrorTypeConcurrencyViolation ErrorType = "CONCURRENCY_VIOLATION"
	ErrorTypeParse                ErrorType = "PARSE_ERROR"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present in a result
func IsUserFriendly(err error) bool {
	var ufe userFriendly
	return errors.As(err, &ufe) && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	var ufe userFriendly
	if errors.As(err, &ufe) {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}

// IsLocal reports whether err is an injection-level failure, one that is recorded as
// an outcome and never aborts the scenario
func IsLocal(err error) bool {
	switch GetErrorType(stacktrace.RootCause(err)) {
	case ErrorTypeTarget, ErrorTypeInjector, ErrorTypeRevert, ErrorTypeTimeout:
		return true
	}
	return false
}
