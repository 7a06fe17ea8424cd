// Package molecule provides the attributed molecular graph model and the
// rule-record types (blocks, modifications, residues, links) consumed by the
// matching, resolution, and transformation engines.
package molecule

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind uint8

// Value kinds. KindUndefined is the zero value and acts as a wildcard
// predicate; KindAbsent is the parsed form of a null literal and requires the
// attribute to be missing (or deletes it when merged).
const (
	KindUndefined Kind = iota
	KindString
	KindFloat
	KindInt
	KindBool
	KindChoice
	KindAbsent
)

// Sentinel errors for value decoding.
var (
	errShortValuePayload = errors.New("value payload too short")
	errUnknownValueKind  = errors.New("unknown value kind")
)

// Value is a tagged variant holding one attribute value or predicate:
// a literal (string, float, int, bool), an alternation set ("A|B|C"),
// or the absent marker (null).
type Value struct {
	kind Kind
	str  string
	num  float64
	iv   int64
	bv   bool
	set  []string
}

// String returns a string-literal value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Float returns a float-literal value.
func Float(f float64) Value { return Value{kind: KindFloat, num: f} }

// Int returns an integer-literal value.
func Int(i int64) Value { return Value{kind: KindInt, iv: i} }

// Bool returns a boolean-literal value.
func Bool(b bool) Value { return Value{kind: KindBool, bv: b} }

// Absent returns the null marker: as a predicate it requires the attribute to
// be missing, and merging it deletes the attribute.
func Absent() Value { return Value{kind: KindAbsent} }

// Choice returns an alternation-set value. The member order is preserved for
// serialization; matching is order-independent. A single member collapses to
// a string literal.
func Choice(members ...string) Value {
	if len(members) == 1 {
		return String(members[0])
	}

	return Value{kind: KindChoice, set: slices.Clone(members)}
}

// Kind returns the variant tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the null marker.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsDefined reports whether v constrains anything: every kind except
// KindUndefined counts, including KindAbsent.
func (v Value) IsDefined() bool { return v.kind != KindUndefined }

// Str returns the string payload of a string value, or "" for other kinds.
func (v Value) Str() string {
	if v.kind == KindString {
		return v.str
	}

	return ""
}

// Num returns the numeric payload as a float64. Integer values are widened.
func (v Value) Num() float64 {
	switch v.kind {
	case KindFloat:
		return v.num
	case KindInt:
		return float64(v.iv)
	default:
		return 0
	}
}

// Intv returns the integer payload. Float values are truncated.
func (v Value) Intv() int64 {
	switch v.kind {
	case KindInt:
		return v.iv
	case KindFloat:
		return int64(v.num)
	default:
		return 0
	}
}

// Boolv returns the boolean payload, or false for other kinds.
func (v Value) Boolv() bool { return v.kind == KindBool && v.bv }

// Members returns the alternation set of a choice value.
func (v Value) Members() []string {
	return slices.Clone(v.set)
}

func (v Value) isNumeric() bool { return v.kind == KindFloat || v.kind == KindInt }

// Matches reports whether the concrete value target satisfies predicate v.
// present reports whether the attribute exists at all on the target: the
// absent predicate matches only missing attributes, the wildcard matches
// everything, and numeric literals compare across int/float kinds.
func (v Value) Matches(target Value, present bool) bool {
	switch v.kind {
	case KindUndefined:
		return true
	case KindAbsent:
		return !present
	case KindChoice:
		return present && target.kind == KindString && slices.Contains(v.set, target.str)
	case KindString:
		return present && target.kind == KindString && target.str == v.str
	case KindBool:
		return present && target.kind == KindBool && target.bv == v.bv
	case KindFloat, KindInt:
		return present && target.isNumeric() && target.Num() == v.Num()
	default:
		return false
	}
}

// Equal reports strict equality: same kind and same payload. Unlike Matches,
// Int(1) and Float(1) are not equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindFloat:
		return v.num == other.num
	case KindInt:
		return v.iv == other.iv
	case KindBool:
		return v.bv == other.bv
	case KindChoice:
		return slices.Equal(v.set, other.set)
	default:
		return true
	}
}

// String renders v the way the rule-file serializer writes it.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindFloat:
		return formatFloatLiteral(v.num)
	case KindInt:
		return strconv.FormatInt(v.iv, 10)
	case KindBool:
		return strconv.FormatBool(v.bv)
	case KindChoice:
		return strings.Join(v.set, "|")
	case KindAbsent:
		return "null"
	default:
		return ""
	}
}

// formatFloatLiteral keeps a decimal point so the serialized form round-trips
// back to a float value rather than an integer.
func formatFloatLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !math.IsInf(f, 0) && !math.IsNaN(f) {
		s += ".0"
	}

	return s
}

// MarshalJSON renders v as the JSON-like attribute-object literal it was
// parsed from: choices collapse to a pipe-joined string, absent becomes null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindChoice:
		return json.Marshal(strings.Join(v.set, "|"))
	case KindFloat:
		return []byte(formatFloatLiteral(v.num)), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.iv, 10)), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.bv)), nil
	case KindAbsent, KindUndefined:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownValueKind, v.kind)
	}
}

// MarshalBinary encodes v for gob, used by the parsed-library cache.
func (v Value) MarshalBinary() ([]byte, error) {
	buf := []byte{byte(v.kind)}

	switch v.kind {
	case KindString:
		buf = append(buf, []byte(v.str)...)
	case KindFloat:
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v.num))
	case KindInt:
		buf = binary.BigEndian.AppendUint64(buf, uint64(v.iv))
	case KindBool:
		if v.bv {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindChoice:
		buf = append(buf, []byte(strings.Join(v.set, "|"))...)
	case KindAbsent, KindUndefined:
		// Tag only.
	}

	return buf, nil
}

// UnmarshalBinary decodes the MarshalBinary representation.
func (v *Value) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return errShortValuePayload
	}

	kind := Kind(data[0])
	payload := data[1:]

	switch kind {
	case KindString:
		*v = String(string(payload))
	case KindFloat:
		if len(payload) != 8 {
			return errShortValuePayload
		}

		*v = Float(math.Float64frombits(binary.BigEndian.Uint64(payload)))
	case KindInt:
		if len(payload) != 8 {
			return errShortValuePayload
		}

		*v = Int(int64(binary.BigEndian.Uint64(payload)))
	case KindBool:
		if len(payload) != 1 {
			return errShortValuePayload
		}

		*v = Bool(payload[0] == 1)
	case KindChoice:
		*v = Value{kind: KindChoice, set: strings.Split(string(payload), "|")}
	case KindAbsent:
		*v = Absent()
	case KindUndefined:
		*v = Value{}
	default:
		return fmt.Errorf("%w: %d", errUnknownValueKind, kind)
	}

	return nil
}

// Attributes maps attribute names to values. A nil map behaves as empty for
// reads; callers that write must allocate.
type Attributes map[string]Value

// Well-known attribute keys. Structure readers populate the identity keys;
// modifications may add the flag keys.
const (
	KeyAtomName     = "atomname"
	KeyResName      = "resname"
	KeyResID        = "resid"
	KeyElement      = "element"
	KeyChain        = "chain"
	KeyCharge       = "charge"
	KeyMass         = "mass"
	KeyAtomType     = "atype"
	KeyChargeGroup  = "charge_group"
	KeyOrder        = "order"
	KeyPTM          = "PTM_atom"
	KeyModification = "modification"
)

// Satisfies reports whether a fulfils every predicate in pred.
func (a Attributes) Satisfies(pred Attributes) bool {
	for key, want := range pred {
		got, ok := a[key]
		if !want.Matches(got, ok) {
			return false
		}
	}

	return true
}

// Merge applies over onto a with overwrite semantics: keys present in over
// replace existing values, and absent-marker values delete the key instead
// of storing it.
func (a Attributes) Merge(over Attributes) {
	for key, val := range over {
		if val.IsAbsent() {
			delete(a, key)

			continue
		}

		a[key] = val
	}
}

// Clone returns a copy of a. Attribute values are immutable, so a shallow
// copy of the map suffices.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}

	out := make(Attributes, len(a))
	for key, val := range a {
		out[key] = val
	}

	return out
}

// Equal reports whether a and other hold the same keys with strictly equal
// values.
func (a Attributes) Equal(other Attributes) bool {
	if len(a) != len(other) {
		return false
	}

	for key, val := range a {
		got, ok := other[key]
		if !ok || !val.Equal(got) {
			return false
		}
	}

	return true
}

// Constrained counts the defined (non-wildcard) predicates in a. Absent
// predicates count: requiring a key to be missing is a constraint.
func (a Attributes) Constrained() int {
	n := 0

	for _, val := range a {
		if val.IsDefined() {
			n++
		}
	}

	return n
}

// SortedKeys returns the attribute names in lexical order.
func (a Attributes) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for key := range a {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}
