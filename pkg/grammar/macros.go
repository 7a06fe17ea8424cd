package grammar

import (
	"slices"
	"strings"
	"unicode"
)

// MacroTable holds the macro definitions of one parse session. Definitions
// are ordered: a macro may reference earlier macros, which are expanded
// eagerly at definition time, but never itself. The table is owned by a
// single parse session and is not safe for concurrent mutation.
type MacroTable struct {
	defs  map[string]string
	order []string
}

// NewMacroTable returns an empty table.
func NewMacroTable() *MacroTable {
	return &MacroTable{defs: map[string]string{}}
}

// Len returns the number of definitions.
func (t *MacroTable) Len() int { return len(t.defs) }

// Names returns the macro names in definition order.
func (t *MacroTable) Names() []string {
	return slices.Clone(t.order)
}

// Lookup returns the expanded value of a macro.
func (t *MacroTable) Lookup(name string) (string, bool) {
	val, ok := t.defs[name]

	return val, ok
}

// Define records a macro. References to earlier macros inside value are
// expanded immediately, so a self or forward reference surfaces as a missing
// macro.
func (t *MacroTable) Define(name, value string) error {
	expanded, err := t.Expand(value)
	if err != nil {
		return err
	}

	if _, exists := t.defs[name]; !exists {
		t.order = append(t.order, name)
	}

	t.defs[name] = expanded

	return nil
}

// Expand replaces every $name reference in text with its definition. The
// expansion path guards against definitions that smuggle a reference back to
// a macro already being expanded.
func (t *MacroTable) Expand(text string) (string, error) {
	return t.expand(text, nil)
}

func (t *MacroTable) expand(text string, path []string) (string, error) {
	if !strings.ContainsRune(text, '$') {
		return text, nil
	}

	var sb strings.Builder

	for i := 0; i < len(text); {
		if text[i] != '$' {
			sb.WriteByte(text[i])
			i++

			continue
		}

		name, width := scanMacroName(text[i+1:])
		if name == "" {
			sb.WriteByte(text[i])
			i++

			continue
		}

		replacement, err := t.resolve(name, path)
		if err != nil {
			return "", err
		}

		sb.WriteString(replacement)
		i += 1 + width
	}

	return sb.String(), nil
}

func (t *MacroTable) resolve(name string, path []string) (string, error) {
	if slices.Contains(path, name) {
		return "", &MacroError{Name: name, Chain: append(slices.Clone(path), name), Msg: "cyclic reference"}
	}

	value, ok := t.defs[name]
	if !ok {
		return "", &MacroError{Name: name, Msg: "not defined"}
	}

	return t.expand(value, append(path, name))
}

// scanMacroName reads a macro identifier (letters, digits, underscore) and
// returns it with its byte width.
func scanMacroName(s string) (string, int) {
	end := 0
	for end < len(s) && isMacroRune(rune(s[end])) {
		end++
	}

	return s[:end], end
}

func isMacroRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
