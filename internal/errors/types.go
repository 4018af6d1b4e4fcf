package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeCapacity   ErrorType = "capacity"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeSessionNotFound       = "ERR_SESSION_NOT_FOUND"
	ErrCodeComponentKindNotFound = "ERR_COMPONENT_KIND_NOT_FOUND"
	ErrCodeTargetNotFound        = "ERR_TARGET_NOT_FOUND"
	ErrCodeSessionActive         = "ERR_SESSION_ACTIVE"
	ErrCodeSessionLimit          = "ERR_SESSION_LIMIT"
	ErrCodeInvalidOperation      = "ERR_INVALID_OPERATION"
	ErrCodeInvalidMove           = "ERR_INVALID_MOVE"
	ErrCodeValidationFailed      = "ERR_VALIDATION_FAILED"
	ErrCodeConfigInvalid         = "ERR_CONFIG_INVALID"
	ErrCodeInternalError         = "ERR_INTERNAL"
)

// EditorError is a structured error type with context.
type EditorError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Component string
}

// Error implements the error interface.
func (e *EditorError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *EditorError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *EditorError) Is(target error) bool {
	var t *EditorError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *EditorError) WithContext(key string, value interface{}) *EditorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *EditorError) WithComponent(component string) *EditorError {
	e.Component = component

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *EditorError {
	return &EditorError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(code, message string) *EditorError {
	return &EditorError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *EditorError {
	return &EditorError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *EditorError {
	return &EditorError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrSessionNotFound is returned when an operation names a session that is not active.
func ErrSessionNotFound(sessionID string) *EditorError {
	return NewNotFoundError(ErrCodeSessionNotFound, "session not found: "+sessionID).
		WithContext("session_id", sessionID)
}

// ErrComponentKindNotFound is returned when AddComponent names an unregistered kind.
func ErrComponentKindNotFound(kind string) *EditorError {
	return NewNotFoundError(
		ErrCodeComponentKindNotFound,
		fmt.Sprintf("component type '%s' not found", kind),
	).WithContext("kind", kind)
}

// ErrTargetNotFound is returned under the strict target policy.
func ErrTargetNotFound(elementID string) *EditorError {
	return NewNotFoundError(ErrCodeTargetNotFound, "element not found: "+elementID).
		WithContext("element_id", elementID)
}

// ErrSessionActive is returned by Start when duplicates are rejected.
func ErrSessionActive(sessionID string) *EditorError {
	return &EditorError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeSessionActive,
		Message: "session already active: " + sessionID,
		Context: map[string]interface{}{"session_id": sessionID},
	}
}

// ErrSessionLimit is returned when the session table is full.
func ErrSessionLimit(limit int) *EditorError {
	return &EditorError{
		Type:    ErrorTypeCapacity,
		Code:    ErrCodeSessionLimit,
		Message: fmt.Sprintf("session limit of %d reached", limit),
	}
}

// ErrInvalidOperation reports an operation the engine cannot interpret.
func ErrInvalidOperation(message string) *EditorError {
	return NewValidationError(ErrCodeInvalidOperation, message)
}

// ErrInvalidMove reports a move that would create a cycle.
func ErrInvalidMove(elementID, parentID string) *EditorError {
	return NewValidationError(
		ErrCodeInvalidMove,
		fmt.Sprintf("cannot move %s into its own subtree (%s)", elementID, parentID),
	)
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return typeOf(err) == ErrorTypeNotFound
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return typeOf(err) == ErrorTypeValidation
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var ee *EditorError
	if errors.As(err, &ee) {
		return ee.Code == code
	}

	return false
}

func typeOf(err error) ErrorType {
	var ee *EditorError
	if errors.As(err, &ee) {
		return ee.Type
	}

	return ""
}

// HTTPStatus maps an error onto the status code the boundary responds with.
func HTTPStatus(err error) int {
	switch typeOf(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeCapacity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler provides centralized error logging.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level chosen by its category.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var ee *EditorError
	if !errors.As(err, &ee) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch ee.Type {
	case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeConflict, ErrorTypeCapacity:
		h.logger.Warn(ctx, err, "Request rejected",
			"type", ee.Type,
			"code", ee.Code)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", ee.Type,
			"code", ee.Code,
			"component", ee.Component)
	}
}

// ValidationError interface for field-specific validation errors.
type ValidationError interface {
	error
	Field() string
	Value() interface{}
}

// FieldValidationError implements ValidationError for specific field errors.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// Field returns the field name that failed validation.
func (fve *FieldValidationError) Field() string {
	return fve.FieldName
}

// Value returns the invalid value.
func (fve *FieldValidationError) Value() interface{} {
	return fve.FieldValue
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	if len(vec.Errors) == 0 {
		return "no validation errors"
	}
	if len(vec.Errors) == 1 {
		return vec.Errors[0].Error()
	}

	return fmt.Sprintf("validation failed with %d errors", len(vec.Errors))
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(field string, value interface{}, message string) {
	vec.Errors = append(vec.Errors, &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
	})
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// Fields returns the names of the failing fields, sorted.
func (vec *ValidationErrorCollection) Fields() []string {
	fields := make([]string, 0, len(vec.Errors))
	for _, err := range vec.Errors {
		fields = append(fields, err.Field())
	}
	sort.Strings(fields)

	return fields
}

// ToEditorError converts the collection to an EditorError, or nil when empty.
func (vec *ValidationErrorCollection) ToEditorError() *EditorError {
	if !vec.HasErrors() {
		return nil
	}

	messages := make([]string, 0, len(vec.Errors))
	context := make(map[string]interface{})
	for _, err := range vec.Errors {
		messages = append(messages, err.Error())
		context[err.Field()] = err.Value()
	}

	return &EditorError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: strings.Join(messages, "; "),
		Context: context,
	}
}
