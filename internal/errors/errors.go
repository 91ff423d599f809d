package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeAcquisition          ErrorType = "Acquisition"
	ErrorTypeIdentifierGeneration ErrorType = "IdentifierGeneration"
	ErrorTypeNotFound             ErrorType = "NotFound"
	ErrorTypeRateLimit            ErrorType = "RateLimit"
	ErrorTypeUnavailable          ErrorType = "Unavailable"
	ErrorTypePersistence          ErrorType = "Persistence"
	ErrorTypeConfiguration        ErrorType = "Configuration"
)

// ScanError carries the failing stage of a scan together with the
// machine or identifier it concerns.
type ScanError struct {
	Type       ErrorType
	Machine    string
	Identifier string
	Op         string
	Err        error
}

func (e *ScanError) Error() string {
	var sb strings.Builder

	sb.WriteString(string(e.Type))
	sb.WriteString(" error")

	if e.Machine != "" {
		sb.WriteString(fmt.Sprintf(" [machine=%s]", e.Machine))
	}
	if e.Identifier != "" {
		sb.WriteString(fmt.Sprintf(" [cpe=%s]", e.Identifier))
	}
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// New creates a new ScanError
func New(errType ErrorType, op string, err error) *ScanError {
	return &ScanError{
		Type: errType,
		Op:   op,
		Err:  err,
	}
}

// WithMachine adds the machine name
func (e *ScanError) WithMachine(machine string) *ScanError {
	e.Machine = machine
	return e
}

// WithIdentifier adds the platform identifier
func (e *ScanError) WithIdentifier(id string) *ScanError {
	e.Identifier = id
	return e
}

func Acquisition(machine string, err error) *ScanError {
	return New(ErrorTypeAcquisition, "acquire inventory", err).WithMachine(machine)
}

func IdentifierGeneration(machine string, err error) *ScanError {
	return New(ErrorTypeIdentifierGeneration, "generate identifiers", err).WithMachine(machine)
}

func Persistence(op string, err error) *ScanError {
	return New(ErrorTypePersistence, op, err)
}

func Configuration(op string, err error) *ScanError {
	return New(ErrorTypeConfiguration, op, err)
}

// TypeOf returns the type of the first ScanError in the chain, or ""
func TypeOf(err error) ErrorType {
	var se *ScanError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

func Is(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// IsFatal reports whether err must abort the whole run.
// Only persistence and configuration failures are fatal.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypePersistence, ErrorTypeConfiguration:
		return true
	}
	return false
}

// GetExitCode returns appropriate exit code for error type
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch TypeOf(err) {
	case ErrorTypeConfiguration:
		return 78 // EX_CONFIG
	case ErrorTypePersistence:
		return 74 // EX_IOERR
	case ErrorTypeAcquisition, ErrorTypeUnavailable:
		return 69 // EX_UNAVAILABLE
	default:
		return 1
	}
}
