package pdb

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/coarsen-md/coarsen/pkg/molecule"
	"github.com/coarsen-md/coarsen/pkg/units"
)

// Write serializes the system as PDB text: one ATOM record per node in
// insertion order, TER after each molecule, CONECT records for every bond,
// and a trailing END. Serial numbers are assigned sequentially across
// molecules, so bonds always reference earlier records.
func Write(w io.Writer, sys *molecule.System) error {
	bw := bufio.NewWriter(w)

	if sys.HasBox {
		fmt.Fprintf(bw, "CRYST1%9.3f%9.3f%9.3f%7.2f%7.2f%7.2f P 1           1\n",
			sys.Box[0]*units.AngstromPerNm, sys.Box[1]*units.AngstromPerNm, sys.Box[2]*units.AngstromPerNm,
			90.0, 90.0, 90.0)
	}

	serial := 0

	for _, mol := range sys.Molecules {
		serials := make(map[molecule.NodeID]int, mol.NodeCount())

		mol.Nodes(func(n *molecule.Node) bool {
			serial++
			serials[n.ID] = serial
			writeAtom(bw, serial, n)

			return true
		})

		fmt.Fprintf(bw, "TER   %5d\n", serial+1)
		serial++

		for _, edge := range mol.Edges() {
			fmt.Fprintf(bw, "CONECT%5d%5d\n", serials[edge.A], serials[edge.B])
		}
	}

	fmt.Fprintln(bw, "END")

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write pdb: %w", err)
	}

	return nil
}

// WriteFile serializes the system to the file at path.
func WriteFile(path string, sys *molecule.System) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create structure file: %w", err)
	}

	if err := Write(f, sys); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close structure file: %w", err)
	}

	return nil
}

func writeAtom(w io.Writer, serial int, n *molecule.Node) {
	name := n.AtomName()
	// Single-letter element names shift right by one column per the format.
	if len(name) < 4 {
		name = " " + name
	}

	chain := n.Chain()
	if chain == "" {
		chain = " "
	}

	var pos molecule.Vec3
	if n.HasPosition {
		pos = n.Position
	}

	fmt.Fprintf(w, "ATOM  %5d %-4.4s %-3.3s %1.1s%4d    %8.3f%8.3f%8.3f  1.00  0.00          %2.2s\n",
		serial, name, n.ResName(), chain, n.ResID(),
		pos[0]*units.AngstromPerNm, pos[1]*units.AngstromPerNm, pos[2]*units.AngstromPerNm,
		n.Element())
}
