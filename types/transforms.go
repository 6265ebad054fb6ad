package types

import "fmt"

// TransformKind names a single kind of state mutation.
type TransformKind uint8

const (
	TransformIdentity TransformKind = iota
	TransformWrite
	TransformAddUInt512
	TransformPrune
)

func (k TransformKind) String() string {
	switch k {
	case TransformIdentity:
		return "identity"
	case TransformWrite:
		return "write"
	case TransformAddUInt512:
		return "add-uint512"
	case TransformPrune:
		return "prune"
	default:
		return fmt.Sprintf("transform-%d", uint8(k))
	}
}

// Transform describes one mutation at one key. Value is set for Write,
// Amount for AddUInt512.
type Transform struct {
	Key    Key
	Kind   TransformKind
	Value  *StoredValue
	Amount U512
}

func IdentityTransform(key Key) Transform {
	return Transform{Key: key, Kind: TransformIdentity}
}

func WriteTransform(key Key, value StoredValue) Transform {
	return Transform{Key: key, Kind: TransformWrite, Value: &value}
}

func AddUInt512Transform(key Key, amount U512) Transform {
	return Transform{Key: key, Kind: TransformAddUInt512, Amount: amount}
}

func PruneTransform(key Key) Transform {
	return Transform{Key: key, Kind: TransformPrune}
}

// TransformError reports a transform that cannot be applied to the value
// currently stored at its key.
type TransformError struct {
	Key  Key
	Kind TransformKind
	Msg  string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s at %s: %s", e.Kind, e.Key, e.Msg)
}

// ApplyTo applies the transform to a current value (nil when the key is
// absent) and returns the resulting value. Prune returns nil.
func (t Transform) ApplyTo(current *StoredValue) (*StoredValue, error) {
	switch t.Kind {
	case TransformIdentity:
		return current, nil
	case TransformWrite:
		v := *t.Value
		return &v, nil
	case TransformPrune:
		return nil, nil
	case TransformAddUInt512:
		if current == nil {
			sv := U512StoredValue(t.Amount)
			return &sv, nil
		}
		base, err := current.AsU512()
		if err != nil {
			return nil, &TransformError{Key: t.Key, Kind: t.Kind, Msg: err.Error()}
		}
		sum, ok := base.Add(t.Amount)
		if !ok {
			return nil, &TransformError{Key: t.Key, Kind: t.Kind, Msg: "u512 addition overflow"}
		}
		sv := U512StoredValue(sum)
		return &sv, nil
	default:
		return nil, &TransformError{Key: t.Key, Kind: t.Kind, Msg: "unknown transform kind"}
	}
}

// Effects is the ordered log of transforms produced by one execution.
// Order is program order and must be preserved through merges.
type Effects struct {
	transforms []Transform
}

func NewEffects() *Effects { return &Effects{} }

func (e *Effects) Push(t Transform) {
	e.transforms = append(e.transforms, t)
}

// Append concatenates other's transforms after e's, preserving order.
func (e *Effects) Append(other *Effects) {
	if other == nil {
		return
	}
	e.transforms = append(e.transforms, other.transforms...)
}

func (e *Effects) Transforms() []Transform {
	if e == nil {
		return nil
	}
	return e.transforms
}

func (e *Effects) Len() int {
	if e == nil {
		return 0
	}
	return len(e.transforms)
}

func (e *Effects) IsEmpty() bool { return e.Len() == 0 }
