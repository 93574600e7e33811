package protocol_test

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire/protocol"
)

// roundTrip serializes v, encodes it to JSON and back, and parses the result.
func roundTrip(t *testing.T, v any) any {
	t.Helper()

	sv, err := protocol.SerializeValue(v, nil)
	require.NoError(t, err)

	data, err := json.Marshal(sv)
	require.NoError(t, err)

	var decoded protocol.SerializedValue
	require.NoError(t, json.Unmarshal(data, &decoded))

	parsed, err := protocol.ParseValue(&decoded, nil)
	require.NoError(t, err)
	return parsed
}

func TestSerializeValue_RoundTripPrimitives(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    any
		expected any
	}{
		{name: "nil", value: nil, expected: nil},
		{name: "undefined", value: protocol.Undefined, expected: protocol.Undefined},
		{name: "true", value: true, expected: true},
		{name: "false", value: false, expected: false},
		{name: "int", value: 42, expected: 42},
		{name: "negative int", value: int64(-7), expected: -7},
		{name: "uint8", value: uint8(200), expected: 200},
		{name: "float", value: 1.5, expected: 1.5},
		{name: "integral float", value: 3.0, expected: 3},
		{name: "zero", value: 0, expected: 0},
		{name: "empty string", value: "", expected: ""},
		{name: "string", value: "hello", expected: "hello"},
		{name: "infinity", value: math.Inf(1), expected: math.Inf(1)},
		{name: "negative infinity", value: math.Inf(-1), expected: math.Inf(-1)},
		{
			name:     "error",
			value:    &protocol.Error{Name: "TypeError", Message: "boom", Stack: "at x"},
			expected: &protocol.Error{Name: "TypeError", Message: "boom", Stack: "at x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, roundTrip(t, tt.value))
		})
	}
}

func TestSerializeValue_NegativeZero(t *testing.T) {
	t.Parallel()

	sv, err := protocol.SerializeValue(math.Copysign(0, -1), nil)
	require.NoError(t, err)
	assert.Equal(t, "-0", sv.V)

	parsed := roundTrip(t, math.Copysign(0, -1))
	f, ok := parsed.(float64)
	require.True(t, ok, "negative zero must stay a float64, got %T", parsed)
	assert.Equal(t, 0.0, f)
	assert.True(t, math.Signbit(f))
}

func TestSerializeValue_NaN(t *testing.T) {
	t.Parallel()

	sv, err := protocol.SerializeValue(math.NaN(), nil)
	require.NoError(t, err)
	assert.Equal(t, "NaN", sv.V)

	parsed := roundTrip(t, math.NaN())
	f, ok := parsed.(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
}

func TestSerializeValue_OrderedObject(t *testing.T) {
	t.Parallel()

	inner := protocol.NewObject()
	inner.Set("z", 1)
	inner.Set("a", []any{"x", nil, protocol.Undefined})

	obj := protocol.NewObject()
	obj.Set("second", "b")
	obj.Set("first", inner)
	obj.Set("empty", []any{})

	parsed := roundTrip(t, obj)
	result, ok := parsed.(*protocol.Object)
	require.True(t, ok)

	var keys []string
	for pair := result.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"second", "first", "empty"}, keys)

	nested, _ := result.Get("first")
	nestedObj, ok := nested.(*protocol.Object)
	require.True(t, ok)
	a, _ := nestedObj.Get("a")
	assert.Equal(t, []any{"x", nil, protocol.Undefined}, a)

	empty, _ := result.Get("empty")
	assert.Equal(t, []any{}, empty)
}

func TestSerializeValue_MapKeysAreSorted(t *testing.T) {
	t.Parallel()

	sv, err := protocol.SerializeValue(map[string]int{"b": 2, "a": 1, "c": 3}, nil)
	require.NoError(t, err)

	require.Len(t, sv.O, 3)
	assert.Equal(t, "a", sv.O[0].K)
	assert.Equal(t, "b", sv.O[1].K)
	assert.Equal(t, "c", sv.O[2].K)
}

func TestSerializeValue_Struct(t *testing.T) {
	t.Parallel()

	type point struct {
		X      int    `json:"x"`
		Y      int    `json:"y"`
		Label  string `json:"label,omitempty"`
		Hidden string `json:"-"`
	}

	parsed := roundTrip(t, point{X: 1, Y: 2, Hidden: "secret"})
	obj, ok := parsed.(*protocol.Object)
	require.True(t, ok)
	assert.Equal(t, 2, obj.Len())
	x, _ := obj.Get("x")
	assert.Equal(t, 1, x)
	_, hasLabel := obj.Get("label")
	assert.False(t, hasLabel)
}

func TestSerializeValue_RichTypes(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	parsedDate := roundTrip(t, date)
	assert.True(t, date.Equal(parsedDate.(time.Time)))

	u, _ := url.Parse("https://example.com/a?b=c")
	assert.Equal(t, u.String(), roundTrip(t, u).(*url.URL).String())

	bi, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, 0, bi.Cmp(roundTrip(t, bi).(*big.Int)))

	re := regexp.MustCompile(`(?i)foo\d+`)
	parsedRe := roundTrip(t, re).(*regexp.Regexp)
	assert.True(t, parsedRe.MatchString("FOO12"))

	parsedErr := roundTrip(t, errors.New("boom"))
	var protoErr *protocol.Error
	require.ErrorAs(t, parsedErr.(error), &protoErr)
	assert.Equal(t, "boom", protoErr.Message)
}

func TestSerializeValue_LargeIntegerStaysFloat(t *testing.T) {
	t.Parallel()

	parsed := roundTrip(t, float64(1<<60))
	assert.IsType(t, float64(0), parsed)
}

func TestSerializeValue_UnsupportedTypesFailFast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		path  string
	}{
		{name: "channel", value: make(chan int)},
		{name: "func", value: func() {}},
		{name: "complex", value: complex(1, 2)},
		{name: "int keyed map", value: map[int]string{1: "a"}},
		{name: "nested func", value: []any{1, map[string]any{"cb": func() {}}}, path: "[1].cb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := protocol.SerializeValue(tt.value, nil)
			var unsupported *protocol.UnsupportedValueError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, tt.path, unsupported.Path)
			assert.NotEmpty(t, unsupported.Error())
		})
	}
}

func TestSerializeValue_RejectsCycles(t *testing.T) {
	t.Parallel()

	m := map[string]any{}
	m["self"] = m

	_, err := protocol.SerializeValue(m, nil)
	var unsupported *protocol.UnsupportedValueError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "self", unsupported.Path)
}

func TestSerializeValue_ErrorKeepsNameAndStack(t *testing.T) {
	t.Parallel()

	var sv protocol.SerializedValue
	require.NoError(t, json.Unmarshal([]byte(`{"e":{"m":"boom","n":"TypeError","s":"at x"}}`), &sv))
	parsed, err := protocol.ParseValue(&sv, nil)
	require.NoError(t, err)

	reserialized, err := protocol.SerializeValue(parsed, nil)
	require.NoError(t, err)
	data, err := json.Marshal(reserialized)
	require.NoError(t, err)
	assert.JSONEq(t, `{"e":{"m":"boom","n":"TypeError","s":"at x"}}`, string(data))

	// Other errors are sent with their message and a generic name.
	sv2, err := protocol.SerializeValue(errors.New("failed"), nil)
	require.NoError(t, err)
	require.NotNil(t, sv2.E)
	assert.Equal(t, "failed", sv2.E.M)
	assert.Equal(t, "Error", sv2.E.N)
}

type arrayWithView struct {
	Buf  [2]int
	View []int
}

func TestSerializeValue_SliceOfOwnArrayIsNoCycle(t *testing.T) {
	t.Parallel()

	v := &arrayWithView{Buf: [2]int{1, 2}}
	v.View = v.Buf[:]

	sv, err := protocol.SerializeValue(v, nil)
	require.NoError(t, err)

	data, err := json.Marshal(sv)
	require.NoError(t, err)
	assert.JSONEq(t, `{"o":[{"k":"Buf","v":{"a":[{"n":1},{"n":2}]}},{"k":"View","v":{"a":[{"n":1},{"n":2}]}}]}`, string(data))
}

type pointerHandle struct {
	guid string
}

func (h *pointerHandle) HandleGUID() string { return h.guid }

func TestSerializeValue_TypedNilPointersAreNull(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
	}{
		{name: "handle", value: (*pointerHandle)(nil)},
		{name: "protocol error", value: (*protocol.Error)(nil)},
		{name: "error", value: (*url.Error)(nil)},
		{name: "object", value: (*protocol.Object)(nil)},
		{name: "url", value: (*url.URL)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			arg, err := protocol.SerializeArgument(tt.value)
			require.NoError(t, err)
			assert.Equal(t, "null", arg.Value.V)
			assert.Empty(t, arg.Handles)
		})
	}
}

type fakeHandle string

func (h fakeHandle) HandleGUID() string { return string(h) }

func TestSerializeArgument_CollectsHandles(t *testing.T) {
	t.Parallel()

	arg, err := protocol.SerializeArgument([]any{fakeHandle("handle@1"), "x", fakeHandle("handle@2")})
	require.NoError(t, err)

	assert.Equal(t, []protocol.ObjectRef{{GUID: "handle@1"}, {GUID: "handle@2"}}, arg.Handles)
	require.Len(t, arg.Value.A, 3)
	assert.Equal(t, 0, *arg.Value.A[0].H)
	assert.Equal(t, 1, *arg.Value.A[2].H)

	parsed, err := protocol.ParseValue(arg.Value, []any{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, []any{"first", "x", "second"}, parsed)
}

func TestSerializeArgument_EmptyHandlesAreEncoded(t *testing.T) {
	t.Parallel()

	arg, err := protocol.SerializeArgument(1)
	require.NoError(t, err)

	data, err := json.Marshal(arg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":{"n":1},"handles":[]}`, string(data))
}

func TestParseValue_CircularReferences(t *testing.T) {
	t.Parallel()

	// {"a": 1, "self": <ref to itself>}
	raw := `{"o":[{"k":"a","v":{"n":1}},{"k":"self","v":{"ref":1}}],"id":1}`

	var sv protocol.SerializedValue
	require.NoError(t, json.Unmarshal([]byte(raw), &sv))

	parsed, err := protocol.ParseValue(&sv, nil)
	require.NoError(t, err)

	obj := parsed.(*protocol.Object)
	self, _ := obj.Get("self")
	assert.Same(t, obj, self)
}

func TestParseValue_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "unknown special", raw: `{"v":"nope"}`},
		{name: "unknown ref", raw: `{"ref":3}`},
		{name: "handle out of range", raw: `{"h":0}`},
		{name: "empty", raw: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var sv protocol.SerializedValue
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &sv))
			_, err := protocol.ParseValue(&sv, nil)
			assert.Error(t, err)
		})
	}
}
