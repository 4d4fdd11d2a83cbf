package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsOrder(t *testing.T) {
	f := NewFields()
	f.Set("b", Int(2))
	f.Set("a", Int(1))
	f.Set("c", Int(3))

	assert.Equal(t, []string{"b", "a", "c"}, f.Keys())
	assert.Equal(t, 3, f.Len())

	// overwriting keeps the original position
	f.Set("a", Int(10))
	assert.Equal(t, []string{"b", "a", "c"}, f.Keys())
	v, ok := f.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(10), v.Int64())
}

func TestFieldsDelete(t *testing.T) {
	f := NewFields()
	f.Set("a", Int(1))
	f.Set("b", Int(2))
	f.Set("c", Int(3))

	f.Delete("b")
	assert.Equal(t, []string{"a", "c"}, f.Keys())
	_, ok := f.Get("b")
	assert.False(t, ok)

	// deleting a missing key is a no-op
	f.Delete("missing")
	assert.Equal(t, 2, f.Len())
}

func TestFieldsMerge(t *testing.T) {
	f := NewFields()
	f.Set("a", Int(1))

	other := NewFields()
	other.Set("b", Int(2))
	other.Set("a", Int(100))

	f.Merge(other)
	assert.Equal(t, []string{"a", "b"}, f.Keys())
	v, _ := f.Get("a")
	assert.Equal(t, int64(100), v.Int64())

	f.Merge(nil)
	assert.Equal(t, 2, f.Len())
}

func TestFieldsMarshalJSON(t *testing.T) {
	f := NewFields()
	f.Set("zulu", Int(1))
	f.Set("alpha", Float(2.5))
	f.Set("mike", Text("idle"))

	data, err := json.Marshal(f)
	require.NoError(t, err)

	// serialization preserves insertion order, not lexical order
	assert.JSONEq(t, `{"zulu":1,"alpha":2.5,"mike":"idle"}`, string(data))
	assert.Equal(t, `{"zulu":1,"alpha":2.5,"mike":"idle"}`, string(data))
}

func TestValueConversions(t *testing.T) {
	assert.Equal(t, KindInt, Int(7).Kind())
	assert.Equal(t, int64(7), Int(7).Int64())
	assert.Equal(t, 7.0, Int(7).Float64())
	assert.Equal(t, "7", Int(7).String())
	assert.Equal(t, any(int64(7)), Int(7).Any())

	assert.Equal(t, KindFloat, Float(2.7).Kind())
	assert.Equal(t, int64(2), Float(2.7).Int64())
	assert.Equal(t, 2.7, Float(2.7).Float64())
	assert.Equal(t, "2.7", Float(2.7).String())

	assert.Equal(t, KindText, Text("on").Kind())
	assert.Equal(t, int64(0), Text("on").Int64())
	assert.Equal(t, "on", Text("on").String())
	assert.Equal(t, any("on"), Text("on").Any())
}

func TestValueMarshalJSON(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Int(42), `42`},
		{Float(0.5), `0.5`},
		{Text("active"), `"active"`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data))
	}
}
