//go:build property
// +build property

package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestErrorProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	types := []ErrorType{
		ErrorTypeValidation,
		ErrorTypeNotFound,
		ErrorTypeConflict,
		ErrorTypeCapacity,
		ErrorTypeConfig,
		ErrorTypeInternal,
	}

	properties.Property("wrapping keeps type and status", prop.ForAll(
		func(i int, code, message string) bool {
			ee := &EditorError{Type: types[i], Code: code, Message: message}
			wrapped := fmt.Errorf("outer: %w", ee)
			return typeOf(wrapped) == types[i] && HTTPStatus(wrapped) == HTTPStatus(ee)
		},
		gen.IntRange(0, len(types)-1),
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.Property("only validation, not found, conflict and capacity avoid 500", prop.ForAll(
		func(i int) bool {
			status := HTTPStatus(&EditorError{Type: types[i]})
			switch types[i] {
			case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeConflict, ErrorTypeCapacity:
				return status != http.StatusInternalServerError
			default:
				return status == http.StatusInternalServerError
			}
		},
		gen.IntRange(0, len(types)-1),
	))

	properties.Property("context values survive", prop.ForAll(
		func(key, value string) bool {
			ee := NewValidationError(ErrCodeValidationFailed, "bad").WithContext(key, value)
			return ee.Context[key] == value
		},
		gen.Identifier(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
