package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ActionKind string

const (
	KindToggleItem ActionKind = "toggle_item"
	KindBulkToggle ActionKind = "bulk_toggle"
	KindRegenerate ActionKind = "regenerate"
)

// Action is a mutation that could not be confirmed by the server. The set of
// implementations is closed: ToggleItem, BulkToggle and Regenerate.
type Action interface {
	Kind() ActionKind
	sealed()
}

type ToggleItem struct {
	ItemID  ID   `json:"item_id"`
	Checked bool `json:"checked"`
}

type BulkToggle struct {
	Items []ItemToggle `json:"items"`
}

type Regenerate struct {
	PreserveChecked bool `json:"preserve_checked"`
}

func (ToggleItem) Kind() ActionKind { return KindToggleItem }
func (BulkToggle) Kind() ActionKind { return KindBulkToggle }
func (Regenerate) Kind() ActionKind { return KindRegenerate }

func (ToggleItem) sealed() {}
func (BulkToggle) sealed() {}
func (Regenerate) sealed() {}

// Toggles returns the item states carried by an action. Regenerate carries
// none.
func Toggles(a Action) []ItemToggle {
	switch v := a.(type) {
	case ToggleItem:
		return []ItemToggle{{ItemID: v.ItemID, Checked: v.Checked}}
	case BulkToggle:
		out := make([]ItemToggle, len(v.Items))
		copy(out, v.Items)
		return out
	case Regenerate:
		return nil
	default:
		panic(fmt.Sprintf("model: unknown action %T", a))
	}
}

// PendingAction is a queued action together with the list it belongs to.
type PendingAction struct {
	ID        string
	ListID    ID
	CreatedAt time.Time
	Action    Action
}

func NewPendingAction(listID ID, a Action) PendingAction {
	return PendingAction{
		ID:        uuid.NewString(),
		ListID:    listID,
		CreatedAt: time.Now().UTC(),
		Action:    a,
	}
}

type pendingActionJSON struct {
	ID        string          `json:"id"`
	Type      ActionKind      `json:"type"`
	ListID    ID              `json:"list_id"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

func (p PendingAction) MarshalJSON() ([]byte, error) {
	if p.Action == nil {
		return nil, fmt.Errorf("pending action %s: no action", p.ID)
	}
	payload, err := json.Marshal(p.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Action.Kind(), err)
	}
	return json.Marshal(pendingActionJSON{
		ID:        p.ID,
		Type:      p.Action.Kind(),
		ListID:    p.ListID,
		CreatedAt: p.CreatedAt,
		Payload:   payload,
	})
}

func (p *PendingAction) UnmarshalJSON(data []byte) error {
	var raw pendingActionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode pending action: %w", err)
	}
	a, err := DecodeAction(raw.Type, raw.Payload)
	if err != nil {
		return err
	}
	*p = PendingAction{
		ID:        raw.ID,
		ListID:    raw.ListID,
		CreatedAt: raw.CreatedAt,
		Action:    a,
	}
	return nil
}

// DecodeAction decodes a payload of the given kind.
func DecodeAction(kind ActionKind, payload []byte) (Action, error) {
	switch kind {
	case KindToggleItem:
		var a ToggleItem
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return a, nil
	case KindBulkToggle:
		var a BulkToggle
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return a, nil
	case KindRegenerate:
		var a Regenerate
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", kind)
	}
}
