package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldErrors maps a field path (e.g. "ordered_items.0.quantity") to messages.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(f[k], "; "))
	}
	return strings.Join(parts, ", ")
}

// ValidationError is a pre-flight failure. It is reported to the form layer
// and the mutation is never submitted.
type ValidationError struct {
	Fields FieldErrors
}

func NewValidation() *ValidationError {
	return &ValidationError{Fields: FieldErrors{}}
}

func (e *ValidationError) Add(field, msg string) { e.Fields.Add(field, msg) }

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// OrNil returns nil when no field was flagged.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Fields.String()
}

// RejectionError is a field-level refusal from the record store. Nested holds
// sub-object errors such as shipping_address or location.
type RejectionError struct {
	Fields FieldErrors
	Nested map[string]FieldErrors
}

func (e *RejectionError) Error() string {
	var b strings.Builder
	b.WriteString("rejected by record store")
	if len(e.Fields) > 0 {
		b.WriteString(": ")
		b.WriteString(e.Fields.String())
	}
	keys := make([]string, 0, len(e.Nested))
	for k := range e.Nested {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "; %s{%s}", k, e.Nested[k].String())
	}
	return b.String()
}

// FailureError is a transport or server failure. It is not retried.
type FailureError struct {
	Err error
}

func (e *FailureError) Error() string {
	return "record store unavailable, try again later: " + e.Err.Error()
}

func (e *FailureError) Unwrap() error { return e.Err }

var ErrIntegrity = errors.New("data integrity violation")

// IntegrityError signals a broken invariant (negative stock, orphaned
// linkage, tally drift). It is never corrected silently.
type IntegrityError struct {
	Reason string
	Err    error
}

func Integrity(format string, args ...any) *IntegrityError {
	return &IntegrityError{Reason: fmt.Sprintf(format, args...)}
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrIntegrity, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrIntegrity, e.Reason)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

func (e *IntegrityError) Unwrap() error { return e.Err }
