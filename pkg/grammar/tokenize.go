package grammar

import (
	"errors"
	"strings"
	"unicode"
)

// Tokenizer errors, wrapped into GrammarError with position context by the
// parsers.
var (
	errUnbalancedBraces = errors.New("unbalanced braces in attribute object")
	errUnclosedString   = errors.New("unterminated string literal")
)

// stripComment removes a trailing ; comment. Comment markers inside quoted
// strings are preserved.
func stripComment(line string) string {
	inString := false

	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case ';':
			if !inString {
				return line[:i]
			}
		}
	}

	return line
}

// sectionHeader reports whether the line is a [ section ] header and returns
// the space-collapsed section name with its original case. Keyword matching
// is case-insensitive and happens at the dispatch sites.
func sectionHeader(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return "", false
	}

	name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	name = strings.Join(strings.Fields(name), " ")

	return name, true
}

// tokenize splits a content line into whitespace-delimited tokens, keeping
// each balanced {...} attribute object as a single token regardless of the
// whitespace inside it.
func tokenize(line string) ([]string, error) {
	var tokens []string

	i := 0
	for i < len(line) {
		r := rune(line[i])

		if unicode.IsSpace(r) {
			i++

			continue
		}

		if r == '{' {
			object, width, err := scanObject(line[i:])
			if err != nil {
				return nil, err
			}

			tokens = append(tokens, object)
			i += width

			continue
		}

		start := i
		for i < len(line) && !unicode.IsSpace(rune(line[i])) && line[i] != '{' {
			i++
		}

		tokens = append(tokens, line[start:i])
	}

	return tokens, nil
}

// scanObject consumes a balanced brace-delimited object starting at s[0] and
// returns it with its byte width. Braces inside quoted strings do not count
// toward the balance.
func scanObject(s string) (string, int, error) {
	depth := 0
	inString := false

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[:i+1], i + 1, nil
				}
			}
		}
	}

	if inString {
		return "", 0, errUnclosedString
	}

	return "", 0, errUnbalancedBraces
}
