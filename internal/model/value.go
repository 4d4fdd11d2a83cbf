// Package models defines the data structures produced by a collection cycle.
package models

import (
	"encoding/json"
	"strconv"
)

// Kind discriminates the scalar variants a field value can hold.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindText
)

// Value is a tagged scalar: an integer, a float, or a piece of text.
//
// Statistic views mix numeric counters with names and timestamps, and their
// column sets differ between server versions, so field values carry their own
// type tag instead of being forced into a fixed record.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Int creates an integer Value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float creates a floating point Value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text creates a textual Value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Kind reports which variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// Int64 returns the integer payload. For float values the fractional part is
// truncated; for text it is zero.
func (v Value) Int64() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// Float64 returns the numeric payload as a float.
func (v Value) Float64() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// String renders the value as text.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return v.s
	}
}

// Any returns the payload as an untyped scalar.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	default:
		return v.s
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}
