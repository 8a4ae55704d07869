// Package protocol defines the closed set of reasons for which a coordinator or
// client rejects a protocol message.
package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode identifies why a request was rejected.
//
// Codes are part of the wire protocol and are serialized by name.
type ErrorCode int

const (
	// Transaction construction.
	NonUniqueInputs ErrorCode = iota + 1
	ScriptNotAllowed
	NotEnoughFunds
	TooMuchFunds
	UneconomicalInput
	NonStandardInput
	NonStandardOutput
	DustOutput
	InsufficientFees
	SizeLimitExceeded

	// Transaction signing.
	WrongCoinjoinSignature
	WitnessAlreadyProvided

	// Credentials.
	InvalidNumberOfPresentedCredentials
	InvalidNumberOfRequestedCredentials
	NegativeBalance
	InvalidPoint
	InvalidBitCommitment
	SerialNumberDuplicated
	SerialNumberAlreadyUsed
	CoordinatorReceivedInvalidProofs
	ClientReceivedInvalidProofs
	IssuedCredentialNumberMismatch
	IncorrectRequestedAmountCredentials
	IncorrectRequestedVsizeCredentials
	DeltaNotZero

	// Rounds.
	RoundNotFound
	WrongPhase
	AliceNotFound
	AliceAlreadyRegistered
	AliceAlreadyConfirmedConnection
	WrongOwnershipProof
	InputSpent
)

var codeNames = map[ErrorCode]string{
	NonUniqueInputs:                     "NonUniqueInputs",
	ScriptNotAllowed:                    "ScriptNotAllowed",
	NotEnoughFunds:                      "NotEnoughFunds",
	TooMuchFunds:                        "TooMuchFunds",
	UneconomicalInput:                   "UneconomicalInput",
	NonStandardInput:                    "NonStandardInput",
	NonStandardOutput:                   "NonStandardOutput",
	DustOutput:                          "DustOutput",
	InsufficientFees:                    "InsufficientFees",
	SizeLimitExceeded:                   "SizeLimitExceeded",
	WrongCoinjoinSignature:              "WrongCoinjoinSignature",
	WitnessAlreadyProvided:              "WitnessAlreadyProvided",
	InvalidNumberOfPresentedCredentials: "InvalidNumberOfPresentedCredentials",
	InvalidNumberOfRequestedCredentials: "InvalidNumberOfRequestedCredentials",
	NegativeBalance:                     "NegativeBalance",
	InvalidPoint:                        "InvalidPoint",
	InvalidBitCommitment:                "InvalidBitCommitment",
	SerialNumberDuplicated:              "SerialNumberDuplicated",
	SerialNumberAlreadyUsed:             "SerialNumberAlreadyUsed",
	CoordinatorReceivedInvalidProofs:    "CoordinatorReceivedInvalidProofs",
	ClientReceivedInvalidProofs:         "ClientReceivedInvalidProofs",
	IssuedCredentialNumberMismatch:      "IssuedCredentialNumberMismatch",
	IncorrectRequestedAmountCredentials: "IncorrectRequestedAmountCredentials",
	IncorrectRequestedVsizeCredentials:  "IncorrectRequestedVsizeCredentials",
	DeltaNotZero:                        "DeltaNotZero",
	RoundNotFound:                       "RoundNotFound",
	WrongPhase:                          "WrongPhase",
	AliceNotFound:                       "AliceNotFound",
	AliceAlreadyRegistered:              "AliceAlreadyRegistered",
	AliceAlreadyConfirmedConnection:     "AliceAlreadyConfirmedConnection",
	WrongOwnershipProof:                 "WrongOwnershipProof",
	InputSpent:                          "InputSpent",
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c ErrorCode) MarshalText() ([]byte, error) {
	if _, ok := codeNames[c]; !ok {
		return nil, fmt.Errorf("protocol: unknown error code %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ErrorCode) UnmarshalText(text []byte) error {
	for code, name := range codeNames {
		if name == string(text) {
			*c = code
			return nil
		}
	}
	return fmt.Errorf("protocol: unknown error code %q", text)
}

// Error is returned whenever a protocol message is rejected.
//
// Two errors match under errors.Is when their codes are equal, regardless of
// the underlying cause.
type Error struct {
	// Code is the reason for the rejection
	Code ErrorCode
	// Err is the underlying error, which may be nil
	Err error
}

// Errorf returns an *Error with the given code, whose cause is formatted as with fmt.Errorf.
func Errorf(code ErrorCode, format string, a ...interface{}) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, a...)}
}

// NewError returns an *Error with the given code and no further detail.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %s", e.Code)
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
