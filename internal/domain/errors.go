// Package domain defines core types, interfaces, and errors for the
// question-answering pipeline.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrorKind enumerates the closed set of plan rejection reasons produced by
// the validator. Callers switch on it to choose a reply; new kinds are added
// here, never invented downstream.
type ErrorKind int

const (
	// KindPlanEmpty: the raw plan document was absent or had no content.
	KindPlanEmpty ErrorKind = iota
	// KindPlanNone: the reasoning service explicitly declined to plan.
	KindPlanNone
	// KindPlanInvalidType: the plan type is neither SELECT nor RAW_SQL.
	KindPlanInvalidType
	// KindPlanNoTable: a SELECT plan named no table at all.
	KindPlanNoTable
	// KindTableNotAuthorized: the named table is not in the catalog.
	KindTableNotAuthorized
	// KindRawSQLNotSelect: a raw statement that does not start with SELECT.
	KindRawSQLNotSelect
	// KindRawSQLForbiddenCmd: a raw statement containing a DDL/DML keyword.
	KindRawSQLForbiddenCmd
)

// String returns the stable code name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindPlanEmpty:
		return "PLAN_EMPTY"
	case KindPlanNone:
		return "PLAN_NONE"
	case KindPlanInvalidType:
		return "PLAN_INVALID_TYPE"
	case KindPlanNoTable:
		return "PLAN_NO_TABLE"
	case KindTableNotAuthorized:
		return "TABLE_NOT_AUTHORIZED"
	case KindRawSQLNotSelect:
		return "RAW_SQL_NOT_SELECT"
	case KindRawSQLForbiddenCmd:
		return "RAW_SQL_FORBIDDEN_CMD"
	default:
		return "UNKNOWN"
	}
}

// PlanError is a validator rejection. Identifier carries the offending
// table name for KindTableNotAuthorized and is empty otherwise.
type PlanError struct {
	Kind       ErrorKind
	Identifier string
}

func (e *PlanError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("plan rejected: %s (%s)", e.Kind, e.Identifier)
	}
	return fmt.Sprintf("plan rejected: %s", e.Kind)
}

// ErrPlan creates a PlanError without an identifier payload.
func ErrPlan(kind ErrorKind) *PlanError {
	return &PlanError{Kind: kind}
}

// ErrTableNotAuthorized creates the table-authorization rejection.
func ErrTableNotAuthorized(name string) *PlanError {
	return &PlanError{Kind: KindTableNotAuthorized, Identifier: name}
}
