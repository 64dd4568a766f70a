package model

import (
	"errors"
	"fmt"

	"xdao.co/rangeproof/proof"
	"xdao.co/rangeproof/storage"
)

type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInvalidCID     ErrorCode = "INVALID_CID"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrFetch          ErrorCode = "FETCH_FAILED"
	ErrOutOfRange     ErrorCode = "RANGE_OUT_OF_BOUNDS"
	ErrInvalidProof   ErrorCode = "INVALID_PROOF"
	ErrRootMismatch   ErrorCode = "ROOT_MISMATCH"
	ErrUnsupported    ErrorCode = "UNSUPPORTED"
	ErrInternal       ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	RuleID  string    `json:"ruleId,omitempty"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// FromError projects a library error onto the boundary codes.
func FromError(err error) *CodedError {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	out := &CodedError{Code: ErrInternal, RuleID: proof.RuleID(err), Message: err.Error()}
	var pe *proof.Error
	if !errors.As(err, &pe) {
		return out
	}
	switch pe.Kind {
	case proof.KindFetch:
		out.Code = ErrFetch
		if storage.IsNotFound(err) {
			out.Code = ErrNotFound
		}
	case proof.KindRangeOutOfBounds:
		out.Code = ErrOutOfRange
	case proof.KindCodec:
		out.Code = ErrUnsupported
	case proof.KindRootMismatch:
		out.Code = ErrRootMismatch
	case proof.KindDecode, proof.KindPatternNotFound, proof.KindSelectorMismatch, proof.KindMalformed, proof.KindAttestation:
		out.Code = ErrInvalidProof
	}
	return out
}
