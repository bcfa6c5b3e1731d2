package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeUnavailable = "DEPENDENCY_UNAVAILABLE"
	ErrCodePersistence = "PERSISTENCE_ERROR"
	ErrCodeInternal    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrEntryNotFound = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
)

// Dependency errors. These never surface as request failures; the pipeline
// degrades to defined fallback values and logs them instead.
var (
	ErrEmbeddingUnavailable  = NewDomainError(ErrCodeUnavailable, "embedding model not available")
	ErrVectorUnavailable     = NewDomainError(ErrCodeUnavailable, "vector index not available")
	ErrGenerationUnavailable = NewDomainError(ErrCodeUnavailable, "generation model not available")
)

// NewPersistenceError wraps a storage failure. Fatal to the mutating call
// that triggered it; the store rolls its in-memory state back before
// returning this.
func NewPersistenceError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodePersistence, "failed to persist knowledge base", err)
}
