package grammar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// Attribute-object errors.
var (
	errMalformedObject   = errors.New("malformed attribute object")
	errUnsupportedValue  = errors.New("unsupported attribute value")
	errNestedObject      = errors.New("nested objects are only allowed under replace")
	errReplaceNotAllowed = errors.New("replace is only allowed on modification atoms")
)

// attributeEntry is the parsed form of one {...} token: the match predicates
// plus the modification-only annotations that ride along in the same object.
type attributeEntry struct {
	match   molecule.Attributes
	replace molecule.Attributes
	ptm     bool
	hasPTM  bool
}

// parseAttributeObject parses a JSON attribute object into predicates.
// Pipe-separated strings become set-membership predicates and null becomes
// the absent marker. When allowReplace is set, a nested "replace" object and
// a "PTM_atom" flag are split out instead of being treated as predicates.
func parseAttributeObject(object string, allowReplace bool) (attributeEntry, error) {
	entry := attributeEntry{match: molecule.Attributes{}}

	raw, err := decodeObject(object)
	if err != nil {
		return entry, err
	}

	for key, val := range raw {
		switch {
		case key == "replace" && allowReplace:
			replace, err := convertReplace(val)
			if err != nil {
				return entry, err
			}

			entry.replace = replace
		case key == "replace":
			return entry, errReplaceNotAllowed
		case key == molecule.KeyPTM:
			flag, ok := val.(bool)
			if !ok {
				return entry, fmt.Errorf("%w: %s must be a boolean", errUnsupportedValue, molecule.KeyPTM)
			}

			entry.ptm = flag
			entry.hasPTM = true

			if allowReplace {
				continue
			}

			// On plain patterns the flag is an ordinary predicate.
			entry.match[key] = molecule.Bool(flag)
		default:
			converted, err := convertValue(key, val)
			if err != nil {
				return entry, err
			}

			entry.match[key] = converted
		}
	}

	return entry, nil
}

func decodeObject(object string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(object))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s", errMalformedObject, err)
	}

	return raw, nil
}

func convertReplace(val any) (molecule.Attributes, error) {
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: replace must be an object", errUnsupportedValue)
	}

	replace := molecule.Attributes{}

	for key, inner := range obj {
		converted, err := convertValue(key, inner)
		if err != nil {
			return nil, err
		}

		replace[key] = converted
	}

	return replace, nil
}

// convertValue maps one decoded JSON value to a predicate value.
func convertValue(key string, val any) (molecule.Value, error) {
	switch v := val.(type) {
	case nil:
		return molecule.Absent(), nil
	case bool:
		return molecule.Bool(v), nil
	case string:
		if strings.ContainsRune(v, '|') {
			return molecule.Choice(strings.Split(v, "|")...), nil
		}

		return molecule.String(v), nil
	case json.Number:
		return convertNumber(v)
	case map[string]any:
		return molecule.Value{}, fmt.Errorf("%w: key %q", errNestedObject, key)
	default:
		return molecule.Value{}, fmt.Errorf("%w: key %q holds %T", errUnsupportedValue, key, val)
	}
}

func convertNumber(num json.Number) (molecule.Value, error) {
	text := num.String()

	if !strings.ContainsAny(text, ".eE") {
		i, err := num.Int64()
		if err == nil {
			return molecule.Int(i), nil
		}
	}

	f, err := num.Float64()
	if err != nil {
		return molecule.Value{}, fmt.Errorf("%w: %q is not a number", errUnsupportedValue, text)
	}

	return molecule.Float(f), nil
}
