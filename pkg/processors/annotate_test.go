package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coarsen-md/coarsen/pkg/molecule"
	"github.com/coarsen-md/coarsen/pkg/resolve"
)

// cTerminalPeptide builds one ALA residue whose C carries both a carbonyl O
// and a terminal OXT, the classic C-terminus signature.
func cTerminalPeptide() (*molecule.Molecule, map[string]molecule.NodeID) {
	mol := molecule.NewMolecule()
	ids := map[string]molecule.NodeID{}

	for _, name := range []string{"N", "CA", "C", "O", "OXT"} {
		ids[name] = mol.AddNode(molecule.Attributes{
			molecule.KeyAtomName: molecule.String(name),
			molecule.KeyResName:  molecule.String("ALA"),
			molecule.KeyResID:    molecule.Int(1),
		})
	}

	_ = mol.AddEdge(ids["N"], ids["CA"], nil)
	_ = mol.AddEdge(ids["CA"], ids["C"], nil)
	_ = mol.AddEdge(ids["C"], ids["O"], nil)
	_ = mol.AddEdge(ids["C"], ids["OXT"], nil)

	return mol, ids
}

func cTerModification() *molecule.Modification {
	return &molecule.Modification{
		Name: "C-ter",
		Atoms: []molecule.ModAtom{
			{
				Name: "OXT",
				Match: molecule.Attributes{
					molecule.KeyAtomName: molecule.String("OXT"),
				},
				PTM:     true,
				Replace: molecule.Attributes{molecule.KeyCharge: molecule.Float(-0.5)},
			},
		},
		Edges: []molecule.ModEdge{{A: "C", B: "OXT"}},
	}
}

func TestAnnotateModificationsTagsMatchedAtoms(t *testing.T) {
	t.Parallel()

	mol, ids := cTerminalPeptide()
	sys := molecule.NewSystem()
	sys.Molecules = append(sys.Molecules, mol)

	annotate := &AnnotateModifications{Modifications: []*molecule.Modification{cTerModification()}}
	require.NoError(t, annotate.RunSystem(context.Background(), sys))

	oxt, _ := mol.Node(ids["OXT"])
	assert.Equal(t, "C-ter", oxt.StringAttr(molecule.KeyModification))
	assert.True(t, oxt.IsPTM())
	assert.InDelta(t, -0.5, oxt.FloatAttr(molecule.KeyCharge), 1e-12)

	// The anchor is identified but not rewritten.
	c, _ := mol.Node(ids["C"])
	_, tagged := c.Attrs[molecule.KeyModification]
	assert.False(t, tagged)
}

func TestAnnotateModificationsNoMatchIsNoop(t *testing.T) {
	t.Parallel()

	mol := molecule.NewMolecule()
	mol.AddNode(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("CA"),
		molecule.KeyResName:  molecule.String("GLY"),
		molecule.KeyResID:    molecule.Int(1),
	})

	sys := molecule.NewSystem()
	sys.Molecules = append(sys.Molecules, mol)

	annotate := &AnnotateModifications{Modifications: []*molecule.Modification{cTerModification()}}
	require.NoError(t, annotate.RunSystem(context.Background(), sys))

	assert.Equal(t, 1, mol.NodeCount())
}

func TestAnnotateModificationsRankingTieIsFatal(t *testing.T) {
	t.Parallel()

	mol, _ := cTerminalPeptide()
	sys := molecule.NewSystem()
	sys.Molecules = append(sys.Molecules, mol)

	first := cTerModification()
	first.Name = "cter-one"
	first.DeclIndex = 2

	second := cTerModification()
	second.Name = "cter-two"
	second.DeclIndex = 2

	annotate := &AnnotateModifications{Modifications: []*molecule.Modification{first, second}}
	err := annotate.RunSystem(context.Background(), sys)
	require.Error(t, err)

	var ambiguous *resolve.AmbiguousMatchError
	assert.ErrorAs(t, err, &ambiguous)
}

func TestAnnotateModificationsPrefersSpecific(t *testing.T) {
	t.Parallel()

	mol, ids := cTerminalPeptide()
	sys := molecule.NewSystem()
	sys.Molecules = append(sys.Molecules, mol)

	generic := cTerModification()
	generic.Name = "cter-generic"
	generic.DeclIndex = 0

	specific := cTerModification()
	specific.Name = "cter-specific"
	specific.DeclIndex = 1
	specific.Atoms[0].Match[molecule.KeyResName] = molecule.String("ALA")

	annotate := &AnnotateModifications{Modifications: []*molecule.Modification{generic, specific}}
	require.NoError(t, annotate.RunSystem(context.Background(), sys))

	oxt, _ := mol.Node(ids["OXT"])
	assert.Equal(t, "cter-specific", oxt.StringAttr(molecule.KeyModification))
}
