package transform

import (
	"fmt"

	"github.com/coarsen-md/coarsen/pkg/match"
	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// ApplyModification rewrites the target in place from one resolved
// correspondence: replace maps are merged onto matched atoms, subtractive PTM
// atoms are removed together with their edges, additive PTM atoms are created
// fresh, and the modification's declared edges are inserted. A declared edge
// whose endpoint cannot be resolved is a StructuralError.
func ApplyModification(target *molecule.Molecule, mod *molecule.Modification, corr match.Correspondence) error {
	bound := make(map[string]molecule.NodeID, len(corr.Binding))
	for name, id := range corr.Binding {
		bound[name] = id
	}

	for _, atom := range mod.Atoms {
		if err := applyModAtom(target, mod, corr, atom, bound); err != nil {
			return err
		}
	}

	return applyModEdges(target, mod, corr, bound)
}

func applyModAtom(
	target *molecule.Molecule, mod *molecule.Modification, corr match.Correspondence,
	atom molecule.ModAtom, bound map[string]molecule.NodeID,
) error {
	id, ok := bound[atom.Name]

	switch {
	case atom.Subtractive():
		if !ok {
			return &StructuralError{
				Rule:   mod.Name,
				Region: regionOf(target, corr),
				Msg:    fmt.Sprintf("atom %q must be removed but is not bound", atom.Name),
			}
		}

		delete(bound, atom.Name)

		return target.RemoveNode(id)
	case atom.PTM && !ok:
		bound[atom.Name] = addPTMAtom(target, mod, atom)

		return nil
	case !ok:
		return &StructuralError{
			Rule:   mod.Name,
			Region: regionOf(target, corr),
			Msg:    fmt.Sprintf("atom %q is not bound", atom.Name),
		}
	default:
		return annotateAtom(target, mod, atom, id)
	}
}

// annotateAtom merges the replace map onto a matched atom and tags it with
// the modification identity.
func annotateAtom(target *molecule.Molecule, mod *molecule.Modification, atom molecule.ModAtom, id molecule.NodeID) error {
	over := atom.Replace.Clone()
	if over == nil {
		over = molecule.Attributes{}
	}

	over[molecule.KeyModification] = molecule.String(mod.Name)

	if atom.PTM {
		over[molecule.KeyPTM] = molecule.Bool(true)
	}

	return target.MergeAttributes(id, over)
}

// addPTMAtom materializes an additive atom. Literal match predicates become
// concrete attributes; alternation and absent predicates carry no single
// value and are skipped.
func addPTMAtom(target *molecule.Molecule, mod *molecule.Modification, atom molecule.ModAtom) molecule.NodeID {
	attrs := molecule.Attributes{}

	for key, val := range atom.Match {
		switch val.Kind() {
		case molecule.KindString, molecule.KindFloat, molecule.KindInt, molecule.KindBool:
			attrs[key] = val
		}
	}

	attrs[molecule.KeyPTM] = molecule.Bool(true)
	attrs[molecule.KeyModification] = molecule.String(mod.Name)
	attrs.Merge(atom.Replace)

	return target.AddNode(attrs)
}

// applyModEdges inserts the declared edges among the surviving atoms. Edges
// touching a removed atom vanished with it; edges naming an atom that never
// resolved are structural failures.
func applyModEdges(
	target *molecule.Molecule, mod *molecule.Modification, corr match.Correspondence,
	bound map[string]molecule.NodeID,
) error {
	removed := func(name string) bool {
		atom, ok := mod.Atom(name)

		return ok && atom.Subtractive()
	}

	for _, edge := range mod.Edges {
		if removed(edge.A) || removed(edge.B) {
			continue
		}

		a, okA := bound[edge.A]
		b, okB := bound[edge.B]

		if !okA || !okB {
			return &StructuralError{
				Rule:   mod.Name,
				Region: regionOf(target, corr),
				Msg:    fmt.Sprintf("edge %s-%s names an unresolved atom", edge.A, edge.B),
			}
		}

		if err := target.AddEdge(a, b, edge.Attrs.Clone()); err != nil {
			return &StructuralError{
				Rule:   mod.Name,
				Region: regionOf(target, corr),
				Msg:    fmt.Sprintf("edge %s-%s: %s", edge.A, edge.B, err),
			}
		}
	}

	return nil
}
