package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID identifies lists and items. The backend sends ids as JSON numbers or
// strings. Number tokens are collapsed to their base-10 integer form so 12 and
// 12.0 compare equal to "12"; string ids are kept as written, so "007" stays
// distinct from 7.
type ID string

// NormalizeID trims surrounding whitespace from a string id.
func NormalizeID(s string) ID {
	return ID(strings.TrimSpace(s))
}

// numberID normalizes a JSON number token.
func numberID(n json.Number) ID {
	if i, err := n.Int64(); err == nil {
		return ID(strconv.FormatInt(i, 10))
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return ID(strconv.FormatInt(int64(f), 10))
	}
	return ID(n.String())
}

func (id ID) String() string { return string(id) }

func (id ID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = NormalizeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = numberID(n)
	return nil
}

type Item struct {
	ID       ID              `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Checked  bool            `json:"checked"`
	Quantity json.RawMessage `json:"quantity,omitempty"`
	Unit     string          `json:"unit,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

type ShoppingList struct {
	ID        ID     `json:"id"`
	Name      string `json:"name,omitempty"`
	Items     []Item `json:"items"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Clone returns a deep copy so optimistic edits never touch the original.
func (l *ShoppingList) Clone() *ShoppingList {
	if l == nil {
		return nil
	}
	c := *l
	c.Items = make([]Item, len(l.Items))
	for i, item := range l.Items {
		if item.Quantity != nil {
			item.Quantity = append(json.RawMessage(nil), item.Quantity...)
		}
		c.Items[i] = item
	}
	return &c
}

// Item returns the index of the item with the given id, or -1.
func (l *ShoppingList) Item(id ID) int {
	if l == nil {
		return -1
	}
	for i := range l.Items {
		if l.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// ListPatch is a server-confirmed partial update. Nil fields are unchanged.
type ListPatch struct {
	ID        ID      `json:"id"`
	Name      *string `json:"name,omitempty"`
	Items     []Item  `json:"items,omitempty"`
	CreatedAt *string `json:"created_at,omitempty"`
}

type ItemToggle struct {
	ItemID  ID   `json:"item_id"`
	Checked bool `json:"checked"`
}

type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
}

// NewStats computes completion stats; percentage is rounded and 0 for an
// empty list.
func NewStats(total, completed int) Stats {
	s := Stats{Total: total, Completed: completed}
	if total > 0 {
		s.Percentage = int(math.Round(float64(completed) / float64(total) * 100))
	}
	return s
}

// CategoryGroup holds the items of one category with their resolved
// checked state.
type CategoryGroup struct {
	Category string `json:"category"`
	Items    []Item `json:"items"`
}
