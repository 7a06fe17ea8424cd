package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coarsen-md/coarsen/pkg/match"
	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// twoAtomTarget builds one residue with two charged, positioned atoms.
func twoAtomTarget(t *testing.T) (*molecule.Molecule, molecule.NodeID, molecule.NodeID) {
	t.Helper()

	mol := molecule.NewMolecule()

	n := mol.AddNodeAt(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("N"),
		molecule.KeyResName:  molecule.String("ALA"),
		molecule.KeyResID:    molecule.Int(1),
		molecule.KeyCharge:   molecule.Float(2.0),
		molecule.KeyMass:     molecule.Float(14.0),
	}, molecule.Vec3{0, 0, 0})

	ca := mol.AddNodeAt(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("CA"),
		molecule.KeyResName:  molecule.String("ALA"),
		molecule.KeyResID:    molecule.Int(1),
		molecule.KeyCharge:   molecule.Float(4.0),
		molecule.KeyMass:     molecule.Float(12.0),
	}, molecule.Vec3{1, 0, 0})

	require.NoError(t, mol.AddEdge(n, ca, nil))

	return mol, n, ca
}

func pairBlock(weightN, weightCA float64) *molecule.Block {
	return &molecule.Block{
		Name:       "pair",
		FromBlocks: []string{"ALA"},
		FromNodes: []molecule.BlockAtom{
			{Ref: molecule.FromRef{Name: "N"}},
			{Ref: molecule.FromRef{Name: "CA"}},
		},
		Mapping: []molecule.Assignment{
			{Source: molecule.FromRef{Name: "N"}, Bead: "BB", Weight: weightN},
			{Source: molecule.FromRef{Name: "CA"}, Bead: "BB", Weight: weightCA},
		},
	}
}

func bindPair(n, ca molecule.NodeID) match.Correspondence {
	return match.Correspondence{
		Rule:    "pair",
		Binding: map[string]molecule.NodeID{"N": n, "CA": ca},
	}
}

func TestApplyBlockAggregatesWeightedAverages(t *testing.T) {
	t.Parallel()

	mol, n, ca := twoAtomTarget(t)

	builder := NewBuilder(0)
	require.NoError(t, builder.ApplyBlock(mol, pairBlock(0.5, 0.5), bindPair(n, ca)))

	out := builder.Result()
	require.Equal(t, 1, out.NodeCount())

	bead, ok := out.Node(out.NodeIDs()[0])
	require.True(t, ok)

	// Equal weights over charges 2.0 and 4.0 average to 3.0, regardless of
	// the absolute weight scale.
	assert.InDelta(t, 3.0, bead.FloatAttr(molecule.KeyCharge), 1e-12)
	assert.InDelta(t, 13.0, bead.FloatAttr(molecule.KeyMass), 1e-12)

	require.True(t, bead.HasPosition)
	assert.InDelta(t, 0.5, bead.Position[0], 1e-12)
}

func TestApplyBlockUnequalWeights(t *testing.T) {
	t.Parallel()

	mol, n, ca := twoAtomTarget(t)

	builder := NewBuilder(0)
	require.NoError(t, builder.ApplyBlock(mol, pairBlock(1.0, 3.0), bindPair(n, ca)))

	bead, _ := builder.Result().Node(builder.Result().NodeIDs()[0])

	// (1*2 + 3*4) / 4 = 3.5
	assert.InDelta(t, 3.5, bead.FloatAttr(molecule.KeyCharge), 1e-12)
	assert.InDelta(t, 0.75, bead.Position[0], 1e-12)
}

func TestApplyBlockIdentityFromDeclaredReference(t *testing.T) {
	t.Parallel()

	mol, n, ca := twoAtomTarget(t)

	block := pairBlock(1, 1)
	block.References = map[string]molecule.FromRef{"BB": {Name: "N"}}

	builder := NewBuilder(0)
	require.NoError(t, builder.ApplyBlock(mol, block, bindPair(n, ca)))

	bead, _ := builder.Result().Node(builder.Result().NodeIDs()[0])

	assert.Equal(t, "BB", bead.AtomName())
	assert.Equal(t, "ALA", bead.ResName())
	assert.Equal(t, int64(1), bead.ResID())
}

func TestApplyBlockIdentityFromHighestWeight(t *testing.T) {
	t.Parallel()

	mol := molecule.NewMolecule()

	n := mol.AddNode(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("N"),
		molecule.KeyResName:  molecule.String("ALA"),
		molecule.KeyResID:    molecule.Int(1),
	})
	ca := mol.AddNode(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("CA"),
		molecule.KeyResName:  molecule.String("GLY"),
		molecule.KeyResID:    molecule.Int(2),
	})

	builder := NewBuilder(0)
	require.NoError(t, builder.ApplyBlock(mol, pairBlock(1.0, 2.0), bindPair(n, ca)))

	bead, _ := builder.Result().Node(builder.Result().NodeIDs()[0])

	// CA carries the larger weight, so the bead inherits its residue.
	assert.Equal(t, "GLY", bead.ResName())
	assert.Equal(t, int64(2), bead.ResID())
}

func TestApplyBlockReferenceTieFallsToDeclarationOrder(t *testing.T) {
	t.Parallel()

	mol, n, ca := twoAtomTarget(t)

	builder := NewBuilder(0)
	require.NoError(t, builder.ApplyBlock(mol, pairBlock(1.0, 1.0), bindPair(n, ca)))

	bead, _ := builder.Result().Node(builder.Result().NodeIDs()[0])

	node, _ := mol.Node(n)
	assert.Equal(t, node.ResName(), bead.ResName(), "equal weights anchor on the first-declared source")
}

func TestApplyBlockUnboundSourceIsStructural(t *testing.T) {
	t.Parallel()

	mol, n, _ := twoAtomTarget(t)

	builder := NewBuilder(0)
	err := builder.ApplyBlock(mol, pairBlock(1, 1), match.Correspondence{
		Rule:    "pair",
		Binding: map[string]molecule.NodeID{"N": n},
	})
	require.Error(t, err)

	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	assert.Equal(t, "pair", structural.Rule)
}

func TestApplyBlockSkipsMissingAggregates(t *testing.T) {
	t.Parallel()

	mol := molecule.NewMolecule()

	n := mol.AddNode(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("N"),
		molecule.KeyResName:  molecule.String("ALA"),
		molecule.KeyResID:    molecule.Int(1),
	})
	ca := mol.AddNode(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("CA"),
		molecule.KeyResName:  molecule.String("ALA"),
		molecule.KeyResID:    molecule.Int(1),
	})

	builder := NewBuilder(0)
	require.NoError(t, builder.ApplyBlock(mol, pairBlock(1, 1), bindPair(n, ca)))

	bead, _ := builder.Result().Node(builder.Result().NodeIDs()[0])

	// No source carries charge or position, so the bead has neither.
	_, hasCharge := bead.Attrs[molecule.KeyCharge]
	assert.False(t, hasCharge)
	assert.False(t, bead.HasPosition)
}

func TestInduceEdgesFollowsSourceBonds(t *testing.T) {
	t.Parallel()

	mol := molecule.NewMolecule()

	var ids []molecule.NodeID

	for resID := int64(1); resID <= 3; resID++ {
		for _, name := range []string{"N", "CA"} {
			ids = append(ids, mol.AddNode(molecule.Attributes{
				molecule.KeyAtomName: molecule.String(name),
				molecule.KeyResName:  molecule.String("ALA"),
				molecule.KeyResID:    molecule.Int(resID),
			}))
		}
	}

	// Bond within each residue, plus a peptide bond between residues 1 and 2.
	// Residue 3 stays disconnected.
	require.NoError(t, mol.AddEdge(ids[0], ids[1], nil))
	require.NoError(t, mol.AddEdge(ids[2], ids[3], nil))
	require.NoError(t, mol.AddEdge(ids[4], ids[5], nil))
	require.NoError(t, mol.AddEdge(ids[1], ids[2], nil))

	builder := NewBuilder(0)
	block := pairBlock(1, 1)

	for res := 0; res < 3; res++ {
		require.NoError(t, builder.ApplyBlock(mol, block, bindPair(ids[2*res], ids[2*res+1])))
	}

	builder.InduceEdges(mol)
	out := builder.Result()

	require.Equal(t, 3, out.NodeCount())
	assert.Equal(t, 1, out.EdgeCount(), "only the peptide-bonded residues yield a bead bond")

	beads := out.NodeIDs()
	assert.True(t, out.HasEdge(beads[0], beads[1]))
	assert.False(t, out.HasEdge(beads[1], beads[2]))
	assert.False(t, out.HasEdge(beads[0], beads[2]))
}

func TestBuilderIDBaseShardsOutputs(t *testing.T) {
	t.Parallel()

	mol, n, ca := twoAtomTarget(t)

	first := NewBuilder(0)
	require.NoError(t, first.ApplyBlock(mol, pairBlock(1, 1), bindPair(n, ca)))

	second := NewBuilder(1 << 20)
	require.NoError(t, second.ApplyBlock(mol, pairBlock(1, 1), bindPair(n, ca)))

	assert.Equal(t, molecule.NodeID(0), first.Result().NodeIDs()[0])
	assert.Equal(t, molecule.NodeID(1<<20), second.Result().NodeIDs()[0])
}
