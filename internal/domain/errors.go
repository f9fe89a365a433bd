// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a duplicate in-flight feedback job for the same
// recommendation.
var ErrConflict = errors.New("conflict: feedback already in flight")

// ErrValidation indicates a malformed experiment result or request.
var ErrValidation = errors.New("validation failed")

// ErrInvalidState indicates an operation was attempted against a
// recommendation whose status does not allow it.
var ErrInvalidState = errors.New("invalid recommendation state")

// ErrExtraction wraps a failure of the memory extractor collaborator.
var ErrExtraction = errors.New("extraction failed")

// ErrStorage wraps a persistence failure.
var ErrStorage = errors.New("storage failure")
