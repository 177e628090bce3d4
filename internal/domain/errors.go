package domain

import "fmt"

// FetchError indicates the dataset could not be downloaded or cached.
type FetchError struct {
	Message string
}

func (e *FetchError) Error() string { return e.Message }

// IntegrityError indicates the cached dataset does not match the expected
// digest. It is fatal: ingestion must never be attempted after one.
type IntegrityError struct {
	Message string
}

func (e *IntegrityError) Error() string { return e.Message }

// SchemaError indicates a DDL statement failed.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string { return e.Message }

// IngestionError indicates the streaming-load upload failed.
type IngestionError struct {
	Message string
}

func (e *IngestionError) Error() string { return e.Message }

// QueryError indicates a verification query failed.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string { return e.Message }

// TeardownError indicates cleanup failed. Reported, never escalated: it does
// not change a run's already-determined outcome.
type TeardownError struct {
	Message string
}

func (e *TeardownError) Error() string { return e.Message }

// ErrFetch creates a FetchError with a formatted message.
func ErrFetch(format string, args ...interface{}) *FetchError {
	return &FetchError{Message: fmt.Sprintf(format, args...)}
}

// ErrIntegrity creates an IntegrityError with a formatted message.
func ErrIntegrity(format string, args ...interface{}) *IntegrityError {
	return &IntegrityError{Message: fmt.Sprintf(format, args...)}
}

// ErrSchema creates a SchemaError with a formatted message.
func ErrSchema(format string, args ...interface{}) *SchemaError {
	return &SchemaError{Message: fmt.Sprintf(format, args...)}
}

// ErrIngestion creates an IngestionError with a formatted message.
func ErrIngestion(format string, args ...interface{}) *IngestionError {
	return &IngestionError{Message: fmt.Sprintf(format, args...)}
}

// ErrQuery creates a QueryError with a formatted message.
func ErrQuery(format string, args ...interface{}) *QueryError {
	return &QueryError{Message: fmt.Sprintf(format, args...)}
}

// ErrTeardown creates a TeardownError with a formatted message.
func ErrTeardown(format string, args ...interface{}) *TeardownError {
	return &TeardownError{Message: fmt.Sprintf(format, args...)}
}
