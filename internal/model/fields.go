package models

import (
	"bytes"
	"encoding/json"
)

// Fields is a string-keyed mapping of metric values that remembers insertion
// order. Column order of the source view is part of the observation schema,
// so plain maps are not enough.
type Fields struct {
	keys []string
	vals map[string]Value
}

// NewFields creates an empty field mapping.
func NewFields() *Fields {
	return &Fields{vals: make(map[string]Value)}
}

// Set stores a value under the given key. Setting an existing key overwrites
// the value but keeps its original position.
func (f *Fields) Set(key string, v Value) {
	if _, ok := f.vals[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.vals[key] = v
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (Value, bool) {
	v, ok := f.vals[key]
	return v, ok
}

// Delete removes a key and its value.
func (f *Fields) Delete(key string) {
	if _, ok := f.vals[key]; !ok {
		return
	}
	delete(f.vals, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string {
	return f.keys
}

// Len returns the number of stored fields.
func (f *Fields) Len() int {
	return len(f.keys)
}

// Merge copies every field of other into f, preserving other's order.
func (f *Fields) Merge(other *Fields) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		f.Set(k, other.vals[k])
	}
}

func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(f.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
