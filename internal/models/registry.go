package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RegistryEntry pairs a report with its id.
type RegistryEntry struct {
	ID     string       `json:"report_id"`
	Report AnnualReport `json:"report"`
}

// Registry maps report ids to reports and remembers insertion order, which
// is the order the offline rebuild chains them in. Not safe for concurrent
// use.
type Registry struct {
	ids   []string
	items map[string]AnnualReport
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]AnnualReport)}
}

func (r *Registry) Len() int { return len(r.ids) }

func (r *Registry) Get(id string) (AnnualReport, bool) {
	rep, ok := r.items[id]
	return rep, ok
}

// Put inserts or replaces a report. A replaced report keeps its position.
func (r *Registry) Put(id string, rep AnnualReport) {
	if r.items == nil {
		r.items = make(map[string]AnnualReport)
	}
	if _, ok := r.items[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.items[id] = rep
}

// Entries returns the reports in insertion order.
func (r *Registry) Entries() []RegistryEntry {
	out := make([]RegistryEntry, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, RegistryEntry{ID: id, Report: r.items[id]})
	}
	return out
}

// Filter returns the entries for which keep is true, in order.
func (r *Registry) Filter(keep func(AnnualReport) bool) []RegistryEntry {
	var out []RegistryEntry
	for _, id := range r.ids {
		if rep := r.items[id]; keep(rep) {
			out = append(out, RegistryEntry{ID: id, Report: rep})
		}
	}
	return out
}

func (r *Registry) Clone() *Registry {
	c := &Registry{
		ids:   append([]string(nil), r.ids...),
		items: make(map[string]AnnualReport, len(r.items)),
	}
	for id, rep := range r.items {
		c.items[id] = rep
	}
	return c
}

func (r *Registry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.items[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object token by token so the file order survives.
func (r *Registry) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("models: registry must be a JSON object")
	}
	out := NewRegistry()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("models: registry key %v is not a string", tok)
		}
		var rep AnnualReport
		if err := dec.Decode(&rep); err != nil {
			return fmt.Errorf("models: registry entry %s: %w", id, err)
		}
		out.Put(id, rep)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = *out
	return nil
}
