package cerrors

import (
	"errors"
	"fmt"
)

// Reason narrows a target or injector failure
type Reason string

const (
	ReasonNotFound             Reason = "NotFound"
	ReasonPermissionDenied     Reason = "PermissionDenied"
	ReasonTargetUnavailable    Reason = "TargetUnavailable"
	ReasonUnsupportedParameter Reason = "UnsupportedParameter"
	ReasonAlreadyActive        Reason = "AlreadyActive"
)

// ErrAlreadyRunning is returned synchronously when a runner is asked to start a second run
var ErrAlreadyRunning = ConcurrencyViolation{Reason: "a scenario is already running on this runner"}

type Error struct {
	ErrorCode ErrorType `json:"errorCode"`
	Reason    string    `json:"reason"`
}

func (e Error) Error() string {
	return fmt.Sprintf("{\"errorCode\":\"%s\",\"reason\":\"%s\"}", e.ErrorCode, e.Reason)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}

type Generic struct {
	Phase  string
	Reason string
}

func (e Generic) Error() string {
	if e.Phase == "" {
		return e.Reason
	}
	return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
}

func (e Generic) UserFriendly() bool {
	return true
}

func (e Generic) ErrorType() ErrorType {
	return ErrorTypeGeneric
}

// Target is raised while locating the resource a fault acts upon
type Target struct {
	Selector string
	Reason   Reason
	Detail   string
}

func (e Target) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("target '%s': %s", e.Selector, e.Reason)
	}
	return fmt.Sprintf("target '%s': %s, %s", e.Selector, e.Reason, e.Detail)
}

func (e Target) UserFriendly() bool {
	return true
}

func (e Target) ErrorType() ErrorType {
	return ErrorTypeTarget
}

// Injector is raised by an injector's apply step
type Injector struct {
	Kind   string
	Reason Reason
	Detail string
}

func (e Injector) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s injector: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s injector: %s, %s", e.Kind, e.Reason, e.Detail)
}

func (e Injector) UserFriendly() bool {
	return true
}

func (e Injector) ErrorType() ErrorType {
	return ErrorTypeInjector
}

// Revert is raised when a live fault could not be cleanly removed, the system may remain degraded
type Revert struct {
	Kind   string
	Target string
	Cause  error
}

func (e Revert) Error() string {
	return fmt.Sprintf("failed to revert %s on '%s', %v", e.Kind, e.Target, e.Cause)
}

func (e Revert) Unwrap() error {
	return e.Cause
}

func (e Revert) UserFriendly() bool {
	return true
}

func (e Revert) ErrorType() ErrorType {
	return ErrorTypeRevert
}

// Scheduling is a scenario-level timing defect, the run cannot produce meaningful results
type Scheduling struct {
	Phase  string
	Reason string
}

func (e Scheduling) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("scheduling error, %s", e.Reason)
	}
	return fmt.Sprintf("scheduling error in phase '%s', %s", e.Phase, e.Reason)
}

func (e Scheduling) UserFriendly() bool {
	return true
}

func (e Scheduling) ErrorType() ErrorType {
	return ErrorTypeScheduling
}

type ConcurrencyViolation struct {
	Reason string
}

func (e ConcurrencyViolation) Error() string {
	return e.Reason
}

func (e ConcurrencyViolation) UserFriendly() bool {
	return true
}

func (e ConcurrencyViolation) ErrorType() ErrorType {
	return ErrorTypeConcurrencyViolation
}

// Parse is returned by the scenario parser, Field locates the offending value
type Parse struct {
	Source string
	Field  string
	Reason string
}

func (e Parse) Error() string {
	switch {
	case e.Source != "" && e.Field != "":
		return fmt.Sprintf("%s: invalid scenario at '%s', %s", e.Source, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("invalid scenario at '%s', %s", e.Field, e.Reason)
	case e.Source != "":
		return fmt.Sprintf("%s: invalid scenario, %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("invalid scenario, %s", e.Reason)
}

func (e Parse) UserFriendly() bool {
	return true
}

func (e Parse) ErrorType() ErrorType {
	return ErrorTypeParse
}

// HasReason reports whether err is a target or injector error with the given reason
func HasReason(err error, reason Reason) bool {
	var te Target
	if errors.As(err, &te) && te.Reason == reason {
		return true
	}
	var ie Injector
	return errors.As(err, &ie) && ie.Reason == reason
}
