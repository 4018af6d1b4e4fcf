package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PatchType identifies a Patch variant on the wire.
type PatchType string

const (
	PatchStyleUpdate   PatchType = "style_update"
	PatchContentUpdate PatchType = "content_update"
	PatchFullReload    PatchType = "full_reload"
)

// Patch is a hot reload instruction for a live preview. The set of
// implementations is closed.
type Patch interface {
	Type() PatchType
	isPatch()
}

// CSSUpdate is the inline style equivalent of a StyleUpdate.
type CSSUpdate struct {
	Property string `json:"property"`
	Value    string `json:"value"`
	CSSRule  string `json:"css_rule"`
}

// StyleUpdate updates the class list of one live node.
type StyleUpdate struct {
	ComponentID   string    `json:"component_id"`
	StyleProperty string    `json:"style_property"`
	NewValue      string    `json:"new_value"`
	Token         string    `json:"token"`
	ClassName     string    `json:"class_name"`
	CSSUpdate     CSSUpdate `json:"css_update"`
	DOMSelector   string    `json:"dom_selector"`
}

// ContentUpdate replaces the text of one live node.
type ContentUpdate struct {
	ComponentID string `json:"component_id"`
	NewContent  string `json:"new_content"`
	DOMSelector string `json:"dom_selector"`
}

// FullReload carries the whole regenerated source.
type FullReload struct {
	UpdatedCode string `json:"updated_code"`
	Reason      string `json:"reason"`
}

func (StyleUpdate) Type() PatchType   { return PatchStyleUpdate }
func (ContentUpdate) Type() PatchType { return PatchContentUpdate }
func (FullReload) Type() PatchType    { return PatchFullReload }

func (StyleUpdate) isPatch()   {}
func (ContentUpdate) isPatch() {}
func (FullReload) isPatch()    {}

// ComponentSelector returns the selector that identifies a live preview node.
func ComponentSelector(componentID string) string {
	return fmt.Sprintf("[data-component-id='%s']", componentID)
}

// MarshalPatch encodes a patch with its type tag.
func MarshalPatch(p Patch) ([]byte, error) {
	fields, err := patchRaw(p)
	if err != nil || fields == nil {
		return []byte("null"), err
	}

	return json.Marshal(fields)
}

// PatchFields returns the patch as a generic map, type tag included. It is
// the form used by non-JSON encoders.
func PatchFields(p Patch) (map[string]interface{}, error) {
	if p == nil {
		return nil, nil
	}

	data, err := MarshalPatch(p)
	if err != nil {
		return nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	return fields, nil
}

func patchRaw(p Patch) (map[string]json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(strconv.Quote(string(p.Type())))

	return fields, nil
}

// DecodePatch decodes a tagged patch produced by MarshalPatch.
func DecodePatch(data []byte) (Patch, error) {
	var envelope struct {
		Type PatchType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	switch envelope.Type {
	case PatchStyleUpdate:
		var p StyleUpdate
		err := json.Unmarshal(data, &p)
		return p, err
	case PatchContentUpdate:
		var p ContentUpdate
		err := json.Unmarshal(data, &p)
		return p, err
	case PatchFullReload:
		var p FullReload
		err := json.Unmarshal(data, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown patch type %q", envelope.Type)
	}
}
