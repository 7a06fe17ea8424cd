package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

func carbonAt(mol *molecule.Molecule, pos molecule.Vec3) molecule.NodeID {
	return mol.AddNodeAt(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("C"),
		molecule.KeyElement:  molecule.String("C"),
	}, pos)
}

func TestMakeBondsInfersFromDistance(t *testing.T) {
	t.Parallel()

	mol := molecule.NewMolecule()

	// Carbon-carbon cutoff is (0.076+0.076)*1.3 = 0.198 nm.
	a := carbonAt(mol, molecule.Vec3{0, 0, 0})
	b := carbonAt(mol, molecule.Vec3{0.15, 0, 0})
	c := carbonAt(mol, molecule.Vec3{1.0, 0, 0})

	sys := molecule.NewSystem()
	sys.Molecules = append(sys.Molecules, mol)

	mb := &MakeBonds{}
	require.NoError(t, mb.RunSystem(context.Background(), sys))

	assert.True(t, mol.HasEdge(a, b))
	assert.False(t, mol.HasEdge(b, c))
	assert.False(t, mol.HasEdge(a, c))
	assert.Equal(t, 1, mol.EdgeCount())
}

func TestMakeBondsUsesElementRadii(t *testing.T) {
	t.Parallel()

	mol := molecule.NewMolecule()

	// Hydrogen-hydrogen cutoff is (0.031+0.031)*1.3 = 0.0806 nm: a 0.15 nm
	// separation bonds carbons but not hydrogens.
	a := mol.AddNodeAt(molecule.Attributes{
		molecule.KeyElement: molecule.String("H"),
	}, molecule.Vec3{0, 0, 0})
	b := mol.AddNodeAt(molecule.Attributes{
		molecule.KeyElement: molecule.String("H"),
	}, molecule.Vec3{0.15, 0, 0})

	sys := molecule.NewSystem()
	sys.Molecules = append(sys.Molecules, mol)

	mb := &MakeBonds{}
	require.NoError(t, mb.RunSystem(context.Background(), sys))

	assert.False(t, mol.HasEdge(a, b))
}

func TestMakeBondsLeavesExistingConnectivityAlone(t *testing.T) {
	t.Parallel()

	mol := molecule.NewMolecule()
	a := carbonAt(mol, molecule.Vec3{0, 0, 0})
	b := carbonAt(mol, molecule.Vec3{0.15, 0, 0})
	c := carbonAt(mol, molecule.Vec3{0.3, 0, 0})
	require.NoError(t, mol.AddEdge(a, c, nil))

	sys := molecule.NewSystem()
	sys.Molecules = append(sys.Molecules, mol)

	mb := &MakeBonds{}
	require.NoError(t, mb.RunSystem(context.Background(), sys))

	// The molecule already declared its bonds; inference must not add more.
	assert.False(t, mol.HasEdge(a, b))
	assert.Equal(t, 1, mol.EdgeCount())
}

func TestMakeBondsSkipsUnpositionedAtoms(t *testing.T) {
	t.Parallel()

	mol := molecule.NewMolecule()
	carbonAt(mol, molecule.Vec3{0, 0, 0})
	mol.AddNode(molecule.Attributes{molecule.KeyElement: molecule.String("C")})

	sys := molecule.NewSystem()
	sys.Molecules = append(sys.Molecules, mol)

	mb := &MakeBonds{}
	require.NoError(t, mb.RunSystem(context.Background(), sys))

	assert.Equal(t, 0, mol.EdgeCount())
}
