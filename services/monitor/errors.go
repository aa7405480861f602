package monitor

import "fmt"

type NormalizationErrorKind string

const (
	InvalidDate       NormalizationErrorKind = "invalid_date"
	MissingIdentity   NormalizationErrorKind = "missing_identity"
	UnknownRecordType NormalizationErrorKind = "unknown_record_type"
)

// NormalizationError drops a single record from the cycle. It never
// aborts the county.
type NormalizationError struct {
	County County
	Kind   NormalizationErrorKind
	Field  string
	Value  string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s (field %q, value %q)", e.County, e.Kind, e.Field, e.Value)
}

// StoreError aborts the county cycle it occurred in.
type StoreError struct {
	County County
	Op     string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("history store %s for %s: %v", e.Op, e.County, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// AdapterError aborts the county cycle before normalization.
type AdapterError struct {
	County County
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter for %s: %v", e.County, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// DispatchError is surfaced per event; store state has already been
// updated by the time it can occur.
type DispatchError struct {
	Dispatcher string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch via %s: %v", e.Dispatcher, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
