package value

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected bool
	}{
		{"null", Null(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero", Number(0), false},
		{"number", Number(2.5), true},
		{"empty string", String(""), false},
		{"string", String("false"), true},
		{"empty array", Array(), false},
		{"array", Array(Null()), true},
		{"empty object", Object(nil), false},
		{"object", Object(map[string]Value{"a": Null()}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.value.Truthy())
		})
	}
}

func TestUnmarshalJSON(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"isTestFile":true,"parties":[{"name":"Smith","share":0.5}],"notes":null}`), &v))

	assert.Equal(t, KindObject, v.Kind())
	assert.Equal(t, []string{"isTestFile", "notes", "parties"}, v.Keys())
	assert.True(t, v.Get("isTestFile").Truthy())
	assert.True(t, v.Get("notes").IsNull())
	_, ok := v.Lookup("notes")
	assert.True(t, ok)

	party := v.Get("parties").Index(0)
	name, ok := party.Get("name").AsString()
	require.True(t, ok)
	assert.Equal(t, "Smith", name)
	share, ok := party.Get("share").AsNumber()
	require.True(t, ok)
	assert.Equal(t, 0.5, share)

	assert.True(t, v.Get("parties").Index(3).IsNull())
	assert.True(t, v.Get("missing").IsNull())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"isTestFile":true,"parties":[{"name":"Smith","share":0.5}],"notes":null}`, string(out))
}

func TestFromInterfaceBSONTypes(t *testing.T) {
	id := primitive.NewObjectID()
	when := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	v, err := FromInterface(primitive.D{
		{Key: "id", Value: id},
		{Key: "when", Value: primitive.NewDateTimeFromTime(when)},
		{Key: "count", Value: int32(3)},
		{Key: "tags", Value: primitive.A{"a", int64(1)}},
	})
	require.NoError(t, err)

	assert.Equal(t, String(id.Hex()), v.Get("id"))
	assert.Equal(t, String("2024-07-01T00:00:00Z"), v.Get("when"))
	assert.Equal(t, Number(3), v.Get("count"))
	assert.True(t, Array(String("a"), Number(1)).Equal(v.Get("tags")))

	_, err = FromInterface(struct{}{})
	assert.Error(t, err)
}

func TestBSONRoundTrip(t *testing.T) {
	type holder struct {
		Data  Value `bson:"data"`
		Empty Value `bson:"empty"`
	}

	in := holder{Data: Object(map[string]Value{
		"isTestFile": Bool(true),
		"amount":     Number(125000),
		"parties":    Array(String("Smith"), String("Jones")),
	})}

	raw, err := bson.Marshal(in)
	require.NoError(t, err)

	var out holder
	require.NoError(t, bson.Unmarshal(raw, &out))

	assert.True(t, in.Data.Equal(out.Data))
	assert.True(t, out.Empty.IsNull())
}

func TestWithAndEqual(t *testing.T) {
	base := Object(map[string]Value{"a": Number(1)})
	next := base.With("b", String("x"))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, next.Len())
	assert.False(t, base.Equal(next))
	assert.True(t, next.Equal(Object(map[string]Value{"a": Number(1), "b": String("x")})))
	assert.Equal(t, 1, Null().With("k", Bool(true)).Len())
}
