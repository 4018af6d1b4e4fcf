// Package types provides the wire-level vocabulary shared by the editor
// packages: edit operations, hot reload patches and change records. It has
// no dependencies on the structural model so that the server, the session
// manager and the CLI can all speak it without import cycles.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/conneroisu/livecanvas/internal/errors"
)

// OperationType identifies an Operation variant on the wire.
type OperationType string

const (
	OpAddComponent    OperationType = "add_component"
	OpMoveComponent   OperationType = "move_component"
	OpUpdateProps     OperationType = "update_props"
	OpDeleteComponent OperationType = "delete_component"
	OpUpdateStyle     OperationType = "update_style"
	OpUpdateContent   OperationType = "update_content"

	// opRemoveComponent is accepted on input as an alias of delete_component.
	opRemoveComponent OperationType = "remove_component"
)

// IsStructural reports whether operations of this type change the shape of
// the element tree or its attributes, which forces a full preview reload.
func (t OperationType) IsStructural() bool {
	switch t {
	case OpUpdateStyle, OpUpdateContent:
		return false
	default:
		return true
	}
}

// Operation is a single discrete edit request understood by the mutation
// engine. The set of implementations is closed.
type Operation interface {
	Type() OperationType
	// Validate checks that the fields the variant needs are present.
	Validate() error
	isOperation()
}

// Props holds component properties. JSON scalars of any kind are accepted
// and kept in their textual form.
type Props map[string]string

// UnmarshalJSON accepts strings, numbers, booleans and null values.
func (p *Props) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	props := make(Props, len(raw))
	for key, value := range raw {
		value = bytes.TrimSpace(value)
		switch {
		case len(value) == 0 || bytes.Equal(value, []byte("null")):
			props[key] = ""
		case value[0] == '"':
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("prop %s: %w", key, err)
			}
			props[key] = s
		case value[0] == '{' || value[0] == '[':
			return fmt.Errorf("prop %s: nested values are not supported", key)
		default:
			props[key] = string(value)
		}
	}
	*p = props

	return nil
}

// Keys returns the property names in sorted order.
func (p Props) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

// AddComponent creates a new element from the component library.
type AddComponent struct {
	ComponentType string `json:"component_type"`
	Props         Props  `json:"props,omitempty"`
	ParentID      string `json:"parent_id,omitempty"`
	// Position is an index into the parent's children; nil appends.
	Position *int `json:"position,omitempty"`
}

// MoveComponent repositions an element under a new parent.
type MoveComponent struct {
	ComponentID string `json:"component_id"`
	// NewParentID of "" moves the element to the top level.
	NewParentID string `json:"new_parent_id,omitempty"`
	NewPosition *int   `json:"new_position,omitempty"`
}

// UpdateProps merges properties into an element's attributes.
type UpdateProps struct {
	ComponentID string `json:"component_id"`
	NewProps    Props  `json:"new_props"`
}

// DeleteComponent removes an element and its subtree.
type DeleteComponent struct {
	ComponentID string `json:"component_id"`
}

// UpdateStyle sets one style property through a utility class token.
type UpdateStyle struct {
	ComponentID   string `json:"component_id"`
	StyleProperty string `json:"style_property"`
	NewValue      string `json:"new_value"`
}

// UpdateContent replaces an element's text content.
type UpdateContent struct {
	ComponentID string `json:"component_id"`
	NewContent  string `json:"new_content"`
}

func (AddComponent) Type() OperationType    { return OpAddComponent }
func (MoveComponent) Type() OperationType   { return OpMoveComponent }
func (UpdateProps) Type() OperationType     { return OpUpdateProps }
func (DeleteComponent) Type() OperationType { return OpDeleteComponent }
func (UpdateStyle) Type() OperationType     { return OpUpdateStyle }
func (UpdateContent) Type() OperationType   { return OpUpdateContent }

func (AddComponent) isOperation()    {}
func (MoveComponent) isOperation()   {}
func (UpdateProps) isOperation()     {}
func (DeleteComponent) isOperation() {}
func (UpdateStyle) isOperation()     {}
func (UpdateContent) isOperation()   {}

// Validate implements Operation.
func (op AddComponent) Validate() error {
	vec := &errors.ValidationErrorCollection{}
	if op.ComponentType == "" {
		vec.AddField("component_type", op.ComponentType, "is required")
	}
	if op.Position != nil && *op.Position < 0 {
		vec.AddField("position", *op.Position, "must not be negative")
	}

	return collected(vec)
}

// Validate implements Operation.
func (op MoveComponent) Validate() error {
	vec := &errors.ValidationErrorCollection{}
	if op.ComponentID == "" {
		vec.AddField("component_id", op.ComponentID, "is required")
	}
	if op.NewPosition != nil && *op.NewPosition < 0 {
		vec.AddField("new_position", *op.NewPosition, "must not be negative")
	}

	return collected(vec)
}

// Validate implements Operation.
func (op UpdateProps) Validate() error {
	vec := &errors.ValidationErrorCollection{}
	if op.ComponentID == "" {
		vec.AddField("component_id", op.ComponentID, "is required")
	}
	if len(op.NewProps) == 0 {
		vec.AddField("new_props", nil, "must contain at least one property")
	}

	return collected(vec)
}

// Validate implements Operation.
func (op DeleteComponent) Validate() error {
	vec := &errors.ValidationErrorCollection{}
	if op.ComponentID == "" {
		vec.AddField("component_id", op.ComponentID, "is required")
	}

	return collected(vec)
}

// Validate implements Operation.
func (op UpdateStyle) Validate() error {
	vec := &errors.ValidationErrorCollection{}
	if op.ComponentID == "" {
		vec.AddField("component_id", op.ComponentID, "is required")
	}
	if op.StyleProperty == "" {
		vec.AddField("style_property", op.StyleProperty, "is required")
	}
	if op.NewValue == "" {
		vec.AddField("new_value", op.NewValue, "is required")
	}

	return collected(vec)
}

// Validate implements Operation. Empty content is allowed.
func (op UpdateContent) Validate() error {
	vec := &errors.ValidationErrorCollection{}
	if op.ComponentID == "" {
		vec.AddField("component_id", op.ComponentID, "is required")
	}

	return collected(vec)
}

func collected(vec *errors.ValidationErrorCollection) error {
	if ee := vec.ToEditorError(); ee != nil {
		return ee
	}

	return nil
}

// TargetID returns the element an operation acts on, or "" for AddComponent.
func TargetID(op Operation) string {
	switch o := op.(type) {
	case MoveComponent:
		return o.ComponentID
	case UpdateProps:
		return o.ComponentID
	case DeleteComponent:
		return o.ComponentID
	case UpdateStyle:
		return o.ComponentID
	case UpdateContent:
		return o.ComponentID
	default:
		return ""
	}
}

// DecodeOperation decodes a JSON envelope of the form {"type": "...", ...}.
func DecodeOperation(data []byte) (Operation, error) {
	var envelope struct {
		Type OperationType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.ErrInvalidOperation("malformed operation: " + err.Error())
	}

	var (
		op  Operation
		err error
	)
	switch envelope.Type {
	case OpAddComponent:
		var o AddComponent
		err = json.Unmarshal(data, &o)
		op = o
	case OpMoveComponent:
		var o MoveComponent
		err = json.Unmarshal(data, &o)
		op = o
	case OpUpdateProps:
		var o UpdateProps
		err = json.Unmarshal(data, &o)
		op = o
	case OpDeleteComponent, opRemoveComponent:
		var o DeleteComponent
		err = json.Unmarshal(data, &o)
		op = o
	case OpUpdateStyle:
		var o UpdateStyle
		err = json.Unmarshal(data, &o)
		op = o
	case OpUpdateContent:
		var o UpdateContent
		err = json.Unmarshal(data, &o)
		op = o
	case "":
		return nil, errors.ErrInvalidOperation("operation type is required")
	default:
		return nil, errors.ErrInvalidOperation("Unknown operation type: " + string(envelope.Type))
	}
	if err != nil {
		return nil, errors.ErrInvalidOperation(
			fmt.Sprintf("malformed %s operation: %v", envelope.Type, err),
		)
	}

	return op, nil
}

// MarshalOperation encodes an operation with its type tag.
func MarshalOperation(op Operation) ([]byte, error) {
	if op == nil {
		return []byte("null"), nil
	}

	body, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(strconv.Quote(string(op.Type())))

	return json.Marshal(fields)
}
