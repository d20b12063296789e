package value

import "encoding/json"

// wireValue is the tagged-union wire form of Value. Unlike ToAny/FromAny
// (which collapse to plain interface{} for rule evaluation), this
// round-trips Kind exactly — int vs. float vs. decimal must survive a
// to_persisted/from_persisted cycle bit-for-bit since a reloaded rule's
// constant pool feeds straight back into arithmetic.
type wireValue struct {
	Kind Kind              `json:"kind"`
	B    bool              `json:"b,omitempty"`
	I    int64             `json:"i,omitempty"`
	F    float64           `json:"f,omitempty"`
	D    string            `json:"d,omitempty"`
	S    string            `json:"s,omitempty"`
	Arr  []Value           `json:"arr,omitempty"`
	Obj  map[string]Value  `json:"obj,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.kind}
	switch v.kind {
	case KindBool:
		w.B = v.b
	case KindInt:
		w.I = v.i
	case KindFloat:
		w.F = v.f
	case KindDecimal:
		w.D = v.d.String()
	case KindString:
		w.S = v.s
	case KindArray:
		w.Arr = v.arr
	case KindObject:
		w.Obj = v.obj
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindNull:
		*v = Null
	case KindBool:
		*v = Bool(w.B)
	case KindInt:
		*v = Int(w.I)
	case KindFloat:
		*v = Float(w.F)
	case KindDecimal:
		d, err := DecimalFromString(w.D)
		if err != nil {
			return err
		}
		*v = d
	case KindString:
		*v = String(w.S)
	case KindArray:
		*v = Array(w.Arr)
	case KindObject:
		*v = Object(w.Obj)
	default:
		*v = Null
	}
	return nil
}
