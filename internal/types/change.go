package types

import (
	"encoding/json"
	"time"
)

// ChangeResult describes what an applied operation did.
type ChangeResult struct {
	// ComponentID is the affected element; for AddComponent, the new one.
	ComponentID string `json:"component_id,omitempty"`
	OldValue    string `json:"old_value,omitempty"`
	NewValue    string `json:"new_value,omitempty"`
	// Applied is false when a lenient target policy turned the operation
	// into a no-op.
	Applied bool `json:"applied"`
}

// ChangeRecord is one entry of a session's append-only history.
type ChangeRecord struct {
	ID        string
	Sequence  int
	Timestamp time.Time
	Operation Operation
	Result    ChangeResult
}

// MarshalJSON encodes the record with the operation's type tag.
func (c ChangeRecord) MarshalJSON() ([]byte, error) {
	op, err := MarshalOperation(c.Operation)
	if err != nil {
		return nil, err
	}

	return json.Marshal(struct {
		ID         string          `json:"id"`
		Sequence   int             `json:"sequence"`
		Timestamp  time.Time       `json:"timestamp"`
		ChangeType OperationType   `json:"change_type"`
		Operation  json.RawMessage `json:"change_data"`
		ChangeResult
	}{
		ID:           c.ID,
		Sequence:     c.Sequence,
		Timestamp:    c.Timestamp,
		ChangeType:   typeOf(c.Operation),
		Operation:    op,
		ChangeResult: c.Result,
	})
}

func typeOf(op Operation) OperationType {
	if op == nil {
		return ""
	}

	return op.Type()
}
