package servus

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode uint16

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeDuplicateRegistration
	ErrCodeNotRegistered
	ErrCodeCircularDependency
	ErrCodeInjectionFailed
	ErrCodeCanceled
	ErrCodeTimeout
	ErrCodeServiceRemoved
	ErrCodeConfigInvalid
)

var codeNames = map[ErrorCode]string{
	ErrCodeUnknown:               "UNKNOWN",
	ErrCodeDuplicateRegistration: "DUPLICATE_REGISTRATION",
	ErrCodeNotRegistered:         "NOT_REGISTERED",
	ErrCodeCircularDependency:    "CIRCULAR_DEPENDENCY",
	ErrCodeInjectionFailed:       "INJECTION_FAILED",
	ErrCodeCanceled:              "CANCELED",
	ErrCodeTimeout:               "TIMEOUT",
	ErrCodeServiceRemoved:        "SERVICE_REMOVED",
	ErrCodeConfigInvalid:         "CONFIG_INVALID",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(c))
}

// Error is the structured failure type for every registry and resolution
// error. Service carries the service key (or consumer identity) involved,
// Cycle the ordered cycle path for CIRCULAR_DEPENDENCY, and Fields the
// unresolved field names for injection failures.
type Error struct {
	Code    ErrorCode
	Message string
	Service string
	Fields  []string
	Cycle   []string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s]", e.Code))

	if e.Service != "" {
		b.WriteString(fmt.Sprintf(" service=%q:", e.Service))
	}

	b.WriteString(" ")
	b.WriteString(e.Message)

	if len(e.Fields) > 0 {
		b.WriteString(" (fields: ")
		b.WriteString(strings.Join(e.Fields, ", "))
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func (e *Error) WithService(service string) *Error {
	e.Service = service
	return e
}

func (e *Error) WithFields(fields []string) *Error {
	e.Fields = fields
	return e
}

func (e *Error) WithCycle(cycle []string) *Error {
	e.Cycle = cycle
	return e
}

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func errDuplicateRegistration(key string) *Error {
	return newError(
		ErrCodeDuplicateRegistration,
		fmt.Sprintf("service already registered for key %s", key),
		nil,
	).WithService(key)
}

func errNotRegistered(key string) *Error {
	return newError(
		ErrCodeNotRegistered,
		fmt.Sprintf("cannot mark unregistered key %s ready", key),
		nil,
	).WithService(key)
}

func errCircularDependency(cycle []string) *Error {
	return newError(
		ErrCodeCircularDependency,
		fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")),
		nil,
	).WithCycle(cycle)
}

func errInjectionFailed(consumer string, fields []string, cause error) *Error {
	return newError(
		ErrCodeInjectionFailed,
		fmt.Sprintf("failed to inject required dependencies into %s", consumer),
		cause,
	).WithService(consumer).WithFields(fields)
}

func errCanceled(subject string, cause error) *Error {
	return newError(
		ErrCodeCanceled,
		fmt.Sprintf("resolution canceled while waiting for %s", subject),
		cause,
	).WithService(subject)
}

func errTimeout(subject string, fields []string, cause error) *Error {
	return newError(
		ErrCodeTimeout,
		fmt.Sprintf("resolution timed out waiting for %s", subject),
		cause,
	).WithService(subject).WithFields(fields)
}

func errServiceRemoved(key string, cause error) *Error {
	return newError(
		ErrCodeServiceRemoved,
		fmt.Sprintf("service %s was unregistered while being awaited", key),
		cause,
	).WithService(key)
}

func errConfigInvalid(message string, cause error) *Error {
	return newError(ErrCodeConfigInvalid, message, cause)
}

func IsDuplicateRegistration(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeDuplicateRegistration
}

func IsNotRegistered(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNotRegistered
}

func IsCircularDependency(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeCircularDependency
}

func IsInjectionFailed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeInjectionFailed
}

func IsCanceled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeCanceled
}

func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeTimeout
}

func IsServiceRemoved(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeServiceRemoved
}

func IsConfigInvalid(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeConfigInvalid
}

// CyclePath extracts the ordered cycle from a CIRCULAR_DEPENDENCY error.
func CyclePath(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeCircularDependency {
		return e.Cycle
	}
	return nil
}

// UnresolvedFields extracts the field names an injection or timeout error
// reported as outstanding.
func UnresolvedFields(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
