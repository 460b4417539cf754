// Package ledger loads, saves and summarizes the feature checklist that
// drives the coding loop.
//
// The ledger is a JSON file (feature_list.json) holding an ordered list of
// features. Two on-disk shapes are accepted:
//
//	[ {feature}, ... ]
//	{"categories": [ {"name": "...", "features": [ {feature}, ... ]}, ... ]}
//
// The nested form is flattened on load. Save always writes the flat form.
package ledger

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Feature is one checklist item. Its identity is Description.
type Feature struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Passes      bool     `json:"passes"`

	// extra preserves fields this package does not model.
	extra map[string]json.RawMessage
}

var knownFields = []string{"category", "description", "steps", "passes"}

// UnmarshalJSON decodes a feature, keeping unknown fields for re-encoding.
func (f *Feature) UnmarshalJSON(data []byte) error {
	type plain Feature
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(all, k)
	}
	*f = Feature(p)
	f.extra = nil
	if len(all) > 0 {
		f.extra = all
	}
	return nil
}

// MarshalJSON encodes the modelled fields first, then any preserved unknown
// fields in key order.
func (f Feature) MarshalJSON() ([]byte, error) {
	type plain Feature
	p := plain(f)
	if p.Steps == nil {
		p.Steps = []string{}
	}
	base, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if len(f.extra) == 0 {
		return base, nil
	}

	keys := make([]string, 0, len(f.extra))
	for k := range f.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(f.extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// clone returns a deep copy of f.
func (f Feature) clone() Feature {
	c := f
	if f.Steps != nil {
		c.Steps = append([]string(nil), f.Steps...)
	}
	if f.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(f.extra))
		for k, v := range f.extra {
			c.extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// Ledger is the ordered feature checklist.
type Ledger []Feature

// Clone returns a deep copy, suitable as a pre-session snapshot.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	c := make(Ledger, len(l))
	for i, f := range l {
		c[i] = f.clone()
	}
	return c
}

// Progress returns the number of passing features and the total.
func (l Ledger) Progress() (passing, total int) {
	for _, f := range l {
		if f.Passes {
			passing++
		}
	}
	return passing, len(l)
}

// IsComplete reports whether the ledger is non-empty and fully passing.
func (l Ledger) IsComplete() bool {
	passing, total := l.Progress()
	return total > 0 && passing == total
}

// Descriptions returns the set of feature descriptions.
func (l Ledger) Descriptions() map[string]bool {
	set := make(map[string]bool, len(l))
	for _, f := range l {
		set[f.Description] = true
	}
	return set
}

// PassingSet returns the descriptions of passing features.
func (l Ledger) PassingSet() map[string]bool {
	set := make(map[string]bool)
	for _, f := range l {
		if f.Passes {
			set[f.Description] = true
		}
	}
	return set
}

// NewlyPassing returns the passing features of l whose description was not
// in the previously passing set, in ledger order.
func (l Ledger) NewlyPassing(previouslyPassing map[string]bool) []Feature {
	var out []Feature
	for _, f := range l {
		if f.Passes && !previouslyPassing[f.Description] {
			out = append(out, f)
		}
	}
	return out
}
