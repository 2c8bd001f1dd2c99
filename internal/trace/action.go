// Package trace models recorded UI interaction traces: ordered actions, the
// (action type, next page) transitions they produce, and their on-disk form.
package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Params carries free-form provenance for an action. It never takes part in
// transition coverage, only in exact-match equality.
type Params map[string]string

// MarshalJSON renders a nil map as {} so saved traces always carry an object.
func (p Params) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(p))
}

// UnmarshalJSON accepts null or an object. Non-string scalar values (numbers,
// booleans, nested values) are kept as their compact JSON text.
func (p *Params) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	out := make(Params, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return fmt.Errorf("params %q: %w", k, err)
		}
		out[k] = buf.String()
	}
	*p = out
	return nil
}

// Action is one step of a trace. A nil NextPage means the resulting page was
// not observed.
type Action struct {
	Type     string  `json:"type"`
	NextPage *string `json:"next_page"`
	Params   Params  `json:"params"`
}

// Page returns a pointer to name, for building actions with a known page.
func Page(name string) *string { return &name }

// NewAction builds an action; page may be "" for an unknown page.
func NewAction(typ, page string, params Params) Action {
	a := Action{Type: typ, Params: params}
	if page != "" {
		a.NextPage = Page(page)
	}
	return a
}

// Key returns the action's transition identity.
func (a Action) Key() TransitionKey {
	if a.NextPage == nil {
		return TransitionKey{Type: a.Type}
	}
	return TransitionKey{Type: a.Type, Page: *a.NextPage, Known: true}
}

// Equal reports full-record equality: type, next page and params.
// A nil params map equals an empty one.
func (a Action) Equal(b Action) bool {
	if a.Type != b.Type {
		return false
	}
	if (a.NextPage == nil) != (b.NextPage == nil) {
		return false
	}
	if a.NextPage != nil && *a.NextPage != *b.NextPage {
		return false
	}
	return maps.Equal(a.Params, b.Params)
}

// String renders the action as canonical JSON (sorted param keys), so two
// equal actions always render identically.
func (a Action) String() string {
	data, err := json.Marshal(a)
	if err != nil {
		return a.Type
	}
	return string(data)
}

// TransitionKey is the (action type, next page) identity used by coverage.
// An unknown page is a value of its own, equal to other unknown pages.
type TransitionKey struct {
	Type  string
	Page  string
	Known bool
}

// NullPage labels a transition whose next page was not observed. Page names
// come from activity and detector labels, which never contain angle brackets.
const NullPage = "<null>"

// PageLabel returns the page name, or NullPage when it was not observed.
func (k TransitionKey) PageLabel() string {
	if !k.Known {
		return NullPage
	}
	return k.Page
}

func (k TransitionKey) String() string {
	if !k.Known {
		return k.Type + " → null"
	}
	return k.Type + " → " + strconv.Quote(k.Page)
}

// Less orders keys by type, then unknown pages first, then page name.
func (k TransitionKey) Less(o TransitionKey) bool {
	if k.Type != o.Type {
		return k.Type < o.Type
	}
	if k.Known != o.Known {
		return !k.Known
	}
	return k.Page < o.Page
}

type transitionKeyJSON struct {
	Type     string  `json:"type"`
	NextPage *string `json:"next_page"`
}

func (k TransitionKey) MarshalJSON() ([]byte, error) {
	v := transitionKeyJSON{Type: k.Type}
	if k.Known {
		v.NextPage = Page(k.Page)
	}
	return json.Marshal(v)
}

func (k *TransitionKey) UnmarshalJSON(data []byte) error {
	var v transitionKeyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*k = TransitionKey{Type: v.Type}
	if v.NextPage != nil {
		k.Page, k.Known = *v.NextPage, true
	}
	return nil
}
