package proof

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Every failure in this module is fatal for the call that produced it: no
// partial proof or partial result is ever returned alongside an error.
type Kind string

const (
	// KindFetch: the block backend was unreachable or did not know a hash.
	KindFetch Kind = "Fetch"
	// KindDecode: bytes did not parse as a dag-pb node or UnixFS payload.
	KindDecode Kind = "Decode"
	// KindPatternNotFound: a child hash or data subset was not a literal
	// substring of its parent's raw bytes.
	KindPatternNotFound Kind = "PatternNotFound"
	// KindRangeOutOfBounds: [start, end) is not inside the content.
	KindRangeOutOfBounds Kind = "RangeOutOfBounds"
	// KindSelectorMismatch: a selector does not address an existing leaf
	// or its slice exceeds the leaf bytes.
	KindSelectorMismatch Kind = "SelectorMismatch"
	// KindMalformed: the proof tree or its encoding is structurally invalid.
	KindMalformed Kind = "Malformed"
	// KindCodec: unsupported CID version, codec or hash function.
	KindCodec Kind = "Codec"
	// KindRootMismatch: the recomputed root does not match the expected CID.
	KindRootMismatch Kind = "RootMismatch"
	// KindAttestation: a verification receipt is malformed, carries a bad
	// signature or commits to something other than expected.
	KindAttestation Kind = "Attestation"
	KindInternal    Kind = "Internal"
)

// Error is the module's structured error type.
//
// RuleID is a stable identifier (e.g. RP-FETCH-001, RP-SEL-002) naming the
// violated rule. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError returns a structured error without a cause.
func NewError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// Errorf is NewError with a formatted message.
func Errorf(kind Kind, ruleID, format string, args ...any) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: fmt.Sprintf(format, args...)}
}

// WrapError returns a structured error carrying cause.
func WrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
