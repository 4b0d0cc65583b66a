// Package errors defines the typed error kinds surfaced by the mapper.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes mapper errors so callers can branch without string matching.
type Kind string

const (
	KindInvalidSchema        Kind = "INVALID_SCHEMA"
	KindInvalidValue         Kind = "INVALID_VALUE"
	KindProtocolViolation    Kind = "PROTOCOL_VIOLATION"
	KindItemNotFound         Kind = "ITEM_NOT_FOUND"
	KindNoReturnedAttributes Kind = "NO_RETURNED_ATTRIBUTES"
	KindTransport            Kind = "TRANSPORT"
)

// MapperError is the custom error type for the mapper.
type MapperError struct {
	Kind    Kind
	Message string

	// Value carries the offending native value for invalid-value errors.
	Value any
	// Request carries the full request that produced an item-not-found error.
	Request any

	Err error
}

// Error implements the error interface.
func (e *MapperError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *MapperError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error kinds

// NewInvalidSchema reports an unrecognized schema type tag or set member type.
func NewInvalidSchema(message string) error {
	return &MapperError{Kind: KindInvalidSchema, Message: message}
}

// NewInvalidValue reports a native value that cannot be coerced to its declared type.
func NewInvalidValue(message string, value any) error {
	return &MapperError{Kind: KindInvalidValue, Message: message, Value: value}
}

// NewProtocolViolation reports an item that does not expose schema or table metadata.
func NewProtocolViolation(message string) error {
	return &MapperError{Kind: KindProtocolViolation, Message: message}
}

// NewItemNotFound reports a single-item read that produced no result. The full
// request is retained for diagnosis.
func NewItemNotFound(message string, request any) error {
	return &MapperError{Kind: KindItemNotFound, Message: message, Request: request}
}

// NewNoReturnedAttributes reports an update whose response lacked the guaranteed
// ALL_NEW attributes.
func NewNoReturnedAttributes(message string) error {
	return &MapperError{Kind: KindNoReturnedAttributes, Message: message}
}

// WrapTransport wraps a store-client failure. Throttling reports are not transport
// errors and never pass through here.
func WrapTransport(err error, message string) error {
	if err == nil {
		return nil
	}
	return &MapperError{Kind: KindTransport, Message: message, Err: err}
}

// Kind checking functions

func is(err error, kind Kind) bool {
	var me *MapperError
	return errors.As(err, &me) && me.Kind == kind
}

// IsInvalidSchema checks if an error is an invalid-schema error.
func IsInvalidSchema(err error) bool { return is(err, KindInvalidSchema) }

// IsInvalidValue checks if an error is an invalid-value error.
func IsInvalidValue(err error) bool { return is(err, KindInvalidValue) }

// IsProtocolViolation checks if an error is a protocol-violation error.
func IsProtocolViolation(err error) bool { return is(err, KindProtocolViolation) }

// IsItemNotFound checks if an error is an item-not-found error.
func IsItemNotFound(err error) bool { return is(err, KindItemNotFound) }

// IsNoReturnedAttributes checks if an error is a no-returned-attributes error.
func IsNoReturnedAttributes(err error) bool { return is(err, KindNoReturnedAttributes) }

// IsTransport checks if an error is a transport error.
func IsTransport(err error) bool { return is(err, KindTransport) }
