package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Ошибки мастера настройки
var (
	ErrInvalidStep           = errors.New("step number must be between 1 and 9")
	ErrInvalidStepOrder      = errors.New("step cannot be completed in this order")
	ErrStepNotSkippable      = errors.New("step is required and cannot be skipped")
	ErrSetupAlreadyActivated = errors.New("setup is already activated")
	ErrValidationFailed      = errors.New("validation failed")
	ErrStepDataNotFound      = errors.New("step data not found")
	ErrProgressNotFound      = errors.New("setup progress not found")
)

// Ошибки организационной структуры
var (
	ErrDepartmentNotFound    = errors.New("department not found")
	ErrPositionNotFound      = errors.New("position not found")
	ErrDuplicateCode         = errors.New("code already exists for this tenant")
	ErrHasDependentPositions = errors.New("department still has positions")
)

// Ошибки импорта
var (
	ErrImportJobNotFound    = errors.New("import job not found")
	ErrInvalidTargetType    = errors.New("invalid import target type")
	ErrInvalidJobTransition = errors.New("import job is not in the expected status")
	ErrImportJobLeased      = errors.New("import job is already being executed")
	ErrEmptyFile            = errors.New("uploaded file is empty")
	ErrFileTooLarge         = errors.New("uploaded file exceeds the size limit")
	ErrUnparsableFile       = errors.New("file could not be parsed")
)

// ValidationError содержит ошибки по полям формы шага.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// RowErrorKind классифицирует отклонённую строку импорта.
type RowErrorKind string

const (
	RowMissingRequiredField RowErrorKind = "MissingRequiredField"
	RowUnresolvedReference  RowErrorKind = "UnresolvedReference"
	RowDuplicateCode        RowErrorKind = "DuplicateCode"
	RowMalformedValue       RowErrorKind = "MalformedValue"
	RowUnparsableFile       RowErrorKind = "UnparsableFile"
)

// RowError - причина отклонения одной строки
type RowError struct {
	Kind    RowErrorKind
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewRowError(kind RowErrorKind, format string, args ...any) *RowError {
	return &RowError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
