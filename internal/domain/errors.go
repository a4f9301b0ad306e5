package domain

import (
	"errors"
	"fmt"
)

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

// Is matches another DomainError by code and message so that sentinel values
// can be compared with errors.Is after being wrapped with a cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
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

// CodeOf returns the code of the outermost DomainError in err's chain, or ""
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether any DomainError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if de, ok := err.(*DomainError); ok && de.Code == code {
			return true
		}
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				if HasCode(inner, code) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		default:
			return false
		}
	}
	return false
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"

	ErrCodeExtraction        = "EXTRACTION_FAILURE"
	ErrCodeEmbedding         = "EMBEDDING_FAILURE"
	ErrCodeIndexBuild        = "INDEX_BUILD_FAILURE"
	ErrCodeEmbeddingMismatch = "EMBEDDING_MISMATCH"
	ErrCodeGeneration        = "GENERATION_FAILURE"
	ErrCodeRetrieval         = "RETRIEVAL_FAILURE"
)

// Validation errors
var (
	ErrEmptyQuestion      = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrInvalidModel       = NewDomainError(ErrCodeValidation, "unknown model variant")
	ErrInvalidChunkConfig = NewDomainError(ErrCodeValidation, "chunk overlap must be smaller than chunk size")
)

// Not found errors
var (
	ErrSessionNotFound = NewDomainError(ErrCodeNotFound, "session not found")
)

// Pipeline errors
var (
	ErrEmptyDocument    = NewDomainError(ErrCodeExtraction, "document is empty")
	ErrUnreadablePDF    = NewDomainError(ErrCodeExtraction, "document is not a readable PDF")
	ErrNoIndex          = NewDomainError(ErrCodeRetrieval, "no document has been indexed for this session")
	ErrEmptyIndex       = NewDomainError(ErrCodeRetrieval, "indexed document contains no text")
	ErrDimensionChanged = NewDomainError(ErrCodeEmbeddingMismatch, "embedding dimension differs from index")
)

// Storage errors
var (
	ErrStorageNotConfigured = NewDomainError(ErrCodeValidation, "document storage is not configured")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
