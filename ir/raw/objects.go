package raw

import "sort"

// Concrete implementations for raw objects.

// Name object
type NameObj struct{ Val string }

func (n NameObj) Type() string  { return "name" }
func (n NameObj) Value() string { return n.Val }

// NameLiteral builds a name object from a Go string.
func NameLiteral(v string) NameObj { return NameObj{Val: v} }

// Number object
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string { return "number" }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }

func NumberInt(v int64) NumberObj     { return NumberObj{I: v, IsInt: true} }
func NumberFloat(v float64) NumberObj { return NumberObj{F: v} }

// Boolean object
type BoolObj struct{ V bool }

func (b BoolObj) Type() string { return "boolean" }
func (b BoolObj) Value() bool  { return b.V }

func Bool(v bool) BoolObj { return BoolObj{V: v} }

// Null object
type NullObj struct{}

func (n NullObj) Type() string { return "null" }

// String object
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string  { return "string" }
func (s StringObj) Value() []byte { return s.Bytes }
func (s StringObj) IsHex() bool   { return s.Hex }

func Str(v []byte) StringObj { return StringObj{Bytes: v} }

// Array object
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string { return "array" }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

func NewArray(items ...Object) *ArrayObj { return &ArrayObj{Items: items} }

// Dictionary object
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string { return "dict" }
func (d *DictObj) Get(key Name) (Object, bool) {
	o, ok := d.KV[key.Value()]
	return o, ok
}
func (d *DictObj) Set(key Name, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key.Value()] = value
}
// Keys returns the dictionary's keys in sorted order so callers that
// enumerate entries behave the same run to run.
func (d *DictObj) Keys() []Name {
	sorted := make([]string, 0, len(d.KV))
	for k := range d.KV {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	out := make([]Name, len(sorted))
	for i, k := range sorted {
		out[i] = NameObj{Val: k}
	}
	return out
}
func (d *DictObj) Len() int { return len(d.KV) }

// Dict creates an empty dictionary.
func Dict() *DictObj { return &DictObj{KV: make(map[string]Object)} }

// Stream object
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string           { return "stream" }
func (s *StreamObj) Dictionary() Dictionary { return s.Dict }
func (s *StreamObj) RawData() []byte        { return s.Data }
func (s *StreamObj) Length() int64          { return int64(len(s.Data)) }

// NewStream builds a stream object and stamps its Length entry.
func NewStream(dict *DictObj, data []byte) *StreamObj {
	if dict == nil {
		dict = Dict()
	}
	dict.Set(NameLiteral("Length"), NumberInt(int64(len(data))))
	return &StreamObj{Dict: dict, Data: data}
}

// Reference object
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string   { return "ref" }
func (r RefObj) Ref() ObjectRef { return r.R }

// Ref builds an indirect reference.
func Ref(num, gen int) RefObj { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }
