// Package grammar parses the line-oriented rule-file formats: mapping rules
// with their modifications, and GROMACS rtp residue libraries. Parsed records
// are returned as molecule rule types; the parsers never mutate their inputs.
package grammar

import (
	"fmt"
	"strings"
)

// GrammarError reports malformed rule text. It aborts the parse of the
// offending file and carries enough position context to locate the line.
type GrammarError struct {
	File    string
	Line    int
	Section string
	Msg     string
}

// Error implements the error interface.
func (e *GrammarError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.File)
	sb.WriteString(":")
	fmt.Fprintf(&sb, "%d", e.Line)

	if e.Section != "" {
		sb.WriteString(" [" + e.Section + "]")
	}

	sb.WriteString(": ")
	sb.WriteString(e.Msg)

	return sb.String()
}

// MacroError reports a missing or cyclic macro reference. It aborts the
// parse of the file that triggered the expansion.
type MacroError struct {
	Name  string
	Chain []string
	Msg   string
}

// Error implements the error interface.
func (e *MacroError) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("macro $%s: %s (expansion chain %s)", e.Name, e.Msg, strings.Join(e.Chain, " -> "))
	}

	return fmt.Sprintf("macro $%s: %s", e.Name, e.Msg)
}
