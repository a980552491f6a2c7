package model

import (
	"encoding/json"
	"testing"
)

func TestPendingActionJSON(t *testing.T) {
	actions := []Action{
		ToggleItem{ItemID: "3", Checked: true},
		BulkToggle{Items: []ItemToggle{{ItemID: "1", Checked: true}, {ItemID: "2"}}},
		Regenerate{PreserveChecked: true},
	}
	for _, a := range actions {
		p := NewPendingAction("9", a)
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal %s: %v", a.Kind(), err)
		}
		var got PendingAction
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", a.Kind(), err)
		}
		if got.ID != p.ID || got.ListID != "9" {
			t.Errorf("%s: envelope = %+v", a.Kind(), got)
		}
		if got.Action.Kind() != a.Kind() {
			t.Errorf("kind = %s, want %s", got.Action.Kind(), a.Kind())
		}
	}
}

func TestDecodeActionUnknownType(t *testing.T) {
	if _, err := DecodeAction("delete_item", []byte(`{}`)); err == nil {
		t.Error("expected error for unknown action type")
	}
}

func TestToggles(t *testing.T) {
	if got := Toggles(ToggleItem{ItemID: "1", Checked: true}); len(got) != 1 || !got[0].Checked {
		t.Errorf("toggle item = %+v", got)
	}
	bulk := BulkToggle{Items: []ItemToggle{{ItemID: "1"}, {ItemID: "2"}}}
	got := Toggles(bulk)
	if len(got) != 2 {
		t.Fatalf("bulk toggles = %d, want 2", len(got))
	}
	got[0].Checked = true
	if bulk.Items[0].Checked {
		t.Error("Toggles should copy bulk items")
	}
	if got := Toggles(Regenerate{}); got != nil {
		t.Errorf("regenerate toggles = %+v, want nil", got)
	}
}
