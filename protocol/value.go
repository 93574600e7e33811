package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// UndefinedType is the type of Undefined.
type UndefinedType struct{}

// Undefined represents the JavaScript undefined value.
var Undefined = UndefinedType{}

func (UndefinedType) String() string { return "undefined" }

// Object is the native form of a serialized object. Key order is preserved.
type Object = orderedmap.OrderedMap[string, any]

// NewObject creates an empty Object.
func NewObject() *Object {
	return orderedmap.New[string, any]()
}

// Handle is implemented by remote handles that can be passed by reference.
type Handle interface {
	HandleGUID() string
}

// SerializedValue is the tagged union exchanged with the driver for evaluated values.
// Exactly one of the tags is set.
type SerializedValue struct {
	V   string               `json:"v,omitempty"`
	N   *float64             `json:"n,omitempty"`
	B   *bool                `json:"b,omitempty"`
	S   *string              `json:"s,omitempty"`
	D   string               `json:"d,omitempty"`
	U   string               `json:"u,omitempty"`
	BI  string               `json:"bi,omitempty"`
	E   *SerializedError     `json:"e,omitempty"`
	R   *SerializedRegExp    `json:"r,omitempty"`
	A   []*SerializedValue   `json:"a,omitempty"`
	O   []SerializedProperty `json:"o,omitempty"`
	H   *int                 `json:"h,omitempty"`
	ID  int                  `json:"id,omitempty"`
	Ref *int                 `json:"ref,omitempty"`
}

// SerializedProperty is one key of a serialized object.
type SerializedProperty struct {
	K string           `json:"k"`
	V *SerializedValue `json:"v"`
}

// SerializedError is the serialized form of a JavaScript Error.
type SerializedError struct {
	M string `json:"m"`
	N string `json:"n"`
	S string `json:"s"`
}

// SerializedRegExp is the serialized form of a JavaScript RegExp.
type SerializedRegExp struct {
	P string `json:"p"`
	F string `json:"f"`
}

// SerializedArgument is the argument of evaluate calls: a value plus the handles it references.
type SerializedArgument struct {
	Value   *SerializedValue `json:"value"`
	Handles []ObjectRef      `json:"handles"`
}

// MarshalJSON keeps empty arrays and objects, which omitempty would drop.
func (sv *SerializedValue) MarshalJSON() ([]byte, error) {
	type plain SerializedValue
	switch {
	case sv.A != nil && len(sv.A) == 0:
		return json.Marshal(struct {
			A  []*SerializedValue `json:"a"`
			ID int                `json:"id,omitempty"`
		}{A: sv.A, ID: sv.ID})
	case sv.O != nil && len(sv.O) == 0:
		return json.Marshal(struct {
			O  []SerializedProperty `json:"o"`
			ID int                  `json:"id,omitempty"`
		}{O: sv.O, ID: sv.ID})
	}
	return json.Marshal((*plain)(sv))
}

const jsDateLayout = "2006-01-02T15:04:05.000Z07:00"

// maxSafeInteger is Number.MAX_SAFE_INTEGER.
const maxSafeInteger = 1<<53 - 1

// HandleList collects the handles referenced while serializing an argument.
type HandleList struct {
	refs []ObjectRef
}

// Refs returns the collected handles in index order.
func (l *HandleList) Refs() []ObjectRef {
	if l == nil || l.refs == nil {
		return []ObjectRef{}
	}
	return l.refs
}

func (l *HandleList) add(guid string) int {
	l.refs = append(l.refs, ObjectRef{GUID: guid})
	return len(l.refs) - 1
}

// SerializeArgument serializes v as an evaluate argument.
func SerializeArgument(v any) (*SerializedArgument, error) {
	handles := &HandleList{}
	value, err := SerializeValue(v, handles)
	if err != nil {
		return nil, err
	}
	return &SerializedArgument{Value: value, Handles: handles.Refs()}, nil
}

// SerializeValue converts a native value into a SerializedValue.
// Handles are appended to handles, which may be nil if v holds none.
func SerializeValue(v any, handles *HandleList) (*SerializedValue, error) {
	s := &serializer{handles: handles, visiting: make(map[visitKey]bool)}
	return s.serialize(v, "")
}

// visitKey identifies a value on the current path. An array and a slice of it share a pointer.
type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

type serializer struct {
	handles  *HandleList
	visiting map[visitKey]bool
}

func (s *serializer) serialize(v any, path string) (*SerializedValue, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return &SerializedValue{V: "null"}, nil
	}

	switch value := v.(type) {
	case nil:
		return &SerializedValue{V: "null"}, nil
	case UndefinedType:
		return &SerializedValue{V: "undefined"}, nil
	case *SerializedValue:
		return value, nil
	case Handle:
		if s.handles == nil {
			return nil, &UnsupportedValueError{Type: reflect.TypeOf(v), Value: v, Path: path}
		}
		h := s.handles.add(value.HandleGUID())
		return &SerializedValue{H: &h}, nil
	case time.Time:
		return &SerializedValue{D: value.UTC().Format(jsDateLayout)}, nil
	case *url.URL:
		return &SerializedValue{U: value.String()}, nil
	case *big.Int:
		return &SerializedValue{BI: value.String()}, nil
	case *regexp.Regexp:
		return serializeRegExp(value), nil
	case *Object:
		rv := reflect.ValueOf(value)
		if err := s.enter(rv, path); err != nil {
			return nil, err
		}
		defer s.leave(rv)
		return s.serializeObject(value, path)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return nil, &UnsupportedValueError{Type: reflect.TypeOf(v), Value: v, Path: path}
		}
		return serializeFloat(f), nil
	case *Error:
		return &SerializedValue{E: &SerializedError{M: value.Message, N: value.Name, S: value.Stack}}, nil
	case error:
		return &SerializedValue{E: &SerializedError{M: value.Error(), N: "Error"}}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		b := rv.Bool()
		return &SerializedValue{B: &b}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return serializeFloat(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return serializeFloat(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return serializeFloat(rv.Float()), nil
	case reflect.String:
		str := rv.String()
		return &SerializedValue{S: &str}, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return &SerializedValue{V: "null"}, nil
		}
		if rv.Kind() == reflect.Pointer {
			if err := s.enter(rv, path); err != nil {
				return nil, err
			}
			defer s.leave(rv)
		}
		return s.serialize(rv.Elem().Interface(), path)
	case reflect.Slice:
		if rv.IsNil() {
			return &SerializedValue{V: "null"}, nil
		}
		if err := s.enter(rv, path); err != nil {
			return nil, err
		}
		defer s.leave(rv)
		return s.serializeList(rv, path)
	case reflect.Array:
		return s.serializeList(rv, path)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &UnsupportedValueError{Type: rv.Type(), Value: v, Path: path}
		}
		if rv.IsNil() {
			return &SerializedValue{V: "null"}, nil
		}
		if err := s.enter(rv, path); err != nil {
			return nil, err
		}
		defer s.leave(rv)
		return s.serializeMap(rv, path)
	case reflect.Struct:
		return s.serializeStruct(rv, path)
	}
	return nil, &UnsupportedValueError{Type: rv.Type(), Value: v, Path: path}
}

// errCycle is wrapped into the UnsupportedValueError of a self-referencing value.
var errCycle = errors.New("cyclic value")

func (s *serializer) enter(rv reflect.Value, path string) error {
	key := visitKey{ptr: rv.Pointer(), typ: rv.Type()}
	if key.ptr == 0 {
		return nil
	}
	if s.visiting[key] {
		return fmt.Errorf("%w: %w", errCycle, &UnsupportedValueError{Type: rv.Type(), Value: "<cycle>", Path: path})
	}
	s.visiting[key] = true
	return nil
}

func (s *serializer) leave(rv reflect.Value) {
	delete(s.visiting, visitKey{ptr: rv.Pointer(), typ: rv.Type()})
}

func (s *serializer) serializeList(rv reflect.Value, path string) (*SerializedValue, error) {
	items := make([]*SerializedValue, rv.Len())
	for i := range items {
		item, err := s.serialize(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return &SerializedValue{A: items}, nil
}

func (s *serializer) serializeObject(obj *Object, path string) (*SerializedValue, error) {
	props := make([]SerializedProperty, 0, obj.Len())
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		value, err := s.serialize(pair.Value, joinPath(path, pair.Key))
		if err != nil {
			return nil, err
		}
		props = append(props, SerializedProperty{K: pair.Key, V: value})
	}
	return &SerializedValue{O: props}, nil
}

func (s *serializer) serializeMap(rv reflect.Value, path string) (*SerializedValue, error) {
	keys := make([]string, 0, rv.Len())
	for _, key := range rv.MapKeys() {
		keys = append(keys, key.String())
	}
	slices.Sort(keys)

	props := make([]SerializedProperty, 0, len(keys))
	for _, key := range keys {
		value, err := s.serialize(rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())).Interface(), joinPath(path, key))
		if err != nil {
			return nil, err
		}
		props = append(props, SerializedProperty{K: key, V: value})
	}
	return &SerializedValue{O: props}, nil
}

func (s *serializer) serializeStruct(rv reflect.Value, path string) (*SerializedValue, error) {
	props := []SerializedProperty{}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		omitEmpty := false
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			omitEmpty = slices.Contains(parts[1:], "omitempty")
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		value, err := s.serialize(fv.Interface(), joinPath(path, name))
		if err != nil {
			return nil, err
		}
		props = append(props, SerializedProperty{K: name, V: value})
	}
	return &SerializedValue{O: props}, nil
}

func serializeFloat(f float64) *SerializedValue {
	switch {
	case math.IsNaN(f):
		return &SerializedValue{V: "NaN"}
	case math.IsInf(f, 1):
		return &SerializedValue{V: "Infinity"}
	case math.IsInf(f, -1):
		return &SerializedValue{V: "-Infinity"}
	case f == 0 && math.Signbit(f):
		return &SerializedValue{V: "-0"}
	}
	return &SerializedValue{N: &f}
}

func serializeRegExp(re *regexp.Regexp) *SerializedValue {
	pattern := re.String()
	flags := ""
	// Go spells flags as a leading (?flags) group.
	if strings.HasPrefix(pattern, "(?") {
		if end := strings.IndexByte(pattern, ')'); end > 2 && !strings.ContainsAny(pattern[2:end], ":<P") {
			for _, f := range pattern[2:end] {
				switch f {
				case 'i', 'm', 's':
					flags += string(f)
				}
			}
			pattern = pattern[end+1:]
		}
	}
	return &SerializedValue{R: &SerializedRegExp{P: pattern, F: flags}}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// ParseValue converts a SerializedValue into its native form.
//
// Integral numbers in the safe integer range become int, other numbers float64.
// Objects become *Object, arrays []any, undefined Undefined and null nil.
// handles resolves {h: index} references.
func ParseValue(sv *SerializedValue, handles []any) (any, error) {
	p := &parser{handles: handles, refs: make(map[int]any)}
	return p.parse(sv)
}

type parser struct {
	handles []any
	refs    map[int]any
}

func (p *parser) parse(sv *SerializedValue) (any, error) {
	if sv == nil {
		return Undefined, nil
	}
	switch {
	case sv.Ref != nil:
		v, ok := p.refs[*sv.Ref]
		if !ok {
			return nil, fmt.Errorf("unknown value reference %d", *sv.Ref)
		}
		return v, nil
	case sv.V != "":
		return parseSpecial(sv.V)
	case sv.N != nil:
		return parseNumber(*sv.N), nil
	case sv.B != nil:
		return *sv.B, nil
	case sv.S != nil:
		return *sv.S, nil
	case sv.D != "":
		t, err := time.Parse(time.RFC3339Nano, sv.D)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", sv.D, err)
		}
		return t, nil
	case sv.U != "":
		u, err := url.Parse(sv.U)
		if err != nil {
			return nil, fmt.Errorf("parsing url %q: %w", sv.U, err)
		}
		return u, nil
	case sv.BI != "":
		bi, ok := new(big.Int).SetString(sv.BI, 10)
		if !ok {
			return nil, fmt.Errorf("invalid bigint %q", sv.BI)
		}
		return bi, nil
	case sv.E != nil:
		return &Error{Name: sv.E.N, Message: sv.E.M, Stack: sv.E.S}, nil
	case sv.R != nil:
		return parseRegExp(sv.R)
	case sv.A != nil:
		items := make([]any, len(sv.A))
		if sv.ID != 0 {
			p.refs[sv.ID] = items
		}
		for i, item := range sv.A {
			v, err := p.parse(item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case sv.O != nil:
		obj := NewObject()
		if sv.ID != 0 {
			p.refs[sv.ID] = obj
		}
		for _, prop := range sv.O {
			v, err := p.parse(prop.V)
			if err != nil {
				return nil, err
			}
			obj.Set(prop.K, v)
		}
		return obj, nil
	case sv.H != nil:
		if *sv.H < 0 || *sv.H >= len(p.handles) {
			return nil, fmt.Errorf("unknown handle index %d", *sv.H)
		}
		return p.handles[*sv.H], nil
	}
	return nil, errors.New("unexpected serialized value")
}

func parseSpecial(v string) (any, error) {
	switch v {
	case "undefined":
		return Undefined, nil
	case "null":
		return nil, nil
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	case "-0":
		return math.Copysign(0, -1), nil
	}
	return nil, fmt.Errorf("unexpected special value %q", v)
}

func parseNumber(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) <= maxSafeInteger && !(f == 0 && math.Signbit(f)) {
		return int(f)
	}
	return f
}

func parseRegExp(r *SerializedRegExp) (any, error) {
	flags := strings.Map(func(c rune) rune {
		if strings.ContainsRune("ims", c) {
			return c
		}
		return -1
	}, r.F)
	pattern := r.P
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling regexp %q: %w", r.P, err)
	}
	return re, nil
}
