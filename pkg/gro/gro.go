// Package gro reads and writes Gromos87 coordinate files. GRO positions are
// already in nanometers, so no unit conversion happens at this boundary. The
// format carries no bonds or chains: reading yields one molecule, and writing
// flattens the system into one numbered atom list.
package gro

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coarsen-md/coarsen/pkg/molecule"
	"github.com/coarsen-md/coarsen/pkg/textutil"
)

// Fixed column layout of a GRO atom line, zero-based half-open.
const (
	colResIDEnd   = 5
	colResNameEnd = 10
	colNameEnd    = 15
	colSerialEnd  = 20
	colCoordWidth = 8
)

// ErrTruncated reports a file shorter than its declared atom count.
var ErrTruncated = errors.New("file ends before the declared atom count")

// Read parses GRO text into a system holding a single molecule.
func Read(data []byte, name string) (*molecule.System, error) {
	if textutil.IsBinary(data) {
		return nil, fmt.Errorf("%s: binary data is not a GRO file", name)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	sys := molecule.NewSystem()
	mol := molecule.NewMolecule()

	if !scanner.Scan() {
		return nil, fmt.Errorf("%s: %w", name, ErrTruncated)
	}

	if title := strings.TrimSpace(scanner.Text()); title != "" {
		sys.Meta["title"] = molecule.String(title)
	}

	if !scanner.Scan() {
		return nil, fmt.Errorf("%s: %w", name, ErrTruncated)
	}

	count, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("%s:2: atom count %q is not a number", name, strings.TrimSpace(scanner.Text()))
	}

	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("%s: %w", name, ErrTruncated)
		}

		if err := readAtom(mol, scanner.Text(), name, i+3); err != nil {
			return nil, err
		}
	}

	if scanner.Scan() {
		if err := readBox(sys, scanner.Text()); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	sys.Molecules = append(sys.Molecules, mol)

	return sys, nil
}

// ReadFile parses the GRO file at path.
func ReadFile(path string) (*molecule.System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read structure file: %w", err)
	}

	return Read(data, filepath.Base(path))
}

func readAtom(mol *molecule.Molecule, line, name string, lineNo int) error {
	if len(line) < colSerialEnd+3*colCoordWidth {
		return fmt.Errorf("%s:%d: atom line is too short (%d columns)", name, lineNo, len(line))
	}

	resID, err := strconv.ParseInt(strings.TrimSpace(line[:colResIDEnd]), 10, 64)
	if err != nil {
		return fmt.Errorf("%s:%d: residue number %q is not a number", name, lineNo, strings.TrimSpace(line[:colResIDEnd]))
	}

	var pos molecule.Vec3

	for i := 0; i < 3; i++ {
		start := colSerialEnd + i*colCoordWidth
		token := strings.TrimSpace(line[start : start+colCoordWidth])

		pos[i], err = strconv.ParseFloat(token, 64)
		if err != nil {
			return fmt.Errorf("%s:%d: coordinate %q is not a number", name, lineNo, token)
		}
	}

	atomName := strings.TrimSpace(line[colResNameEnd:colNameEnd])

	mol.AddNodeAt(molecule.Attributes{
		molecule.KeyAtomName: molecule.String(atomName),
		molecule.KeyResName:  molecule.String(strings.TrimSpace(line[colResIDEnd:colResNameEnd])),
		molecule.KeyResID:    molecule.Int(resID),
	}, pos)

	return nil
}

// readBox parses the free-format box line; only the three diagonal lengths
// are kept.
func readBox(sys *molecule.System, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil
	}

	for i := 0; i < 3; i++ {
		val, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return fmt.Errorf("box length %q is not a number", fields[i])
		}

		sys.Box[i] = val
	}

	sys.HasBox = true

	return nil
}

// Write serializes the system as GRO text. Atom and residue numbers wrap at
// the format's five-column limit, matching reference implementations.
func Write(w io.Writer, sys *molecule.System) error {
	bw := bufio.NewWriter(w)

	title := sys.Meta["title"].Str()
	if title == "" {
		title = "Written by coarsen"
	}

	fmt.Fprintln(bw, title)
	fmt.Fprintf(bw, "%5d\n", sys.AtomCount())

	serial := 0

	for _, mol := range sys.Molecules {
		mol.Nodes(func(n *molecule.Node) bool {
			serial++

			var pos molecule.Vec3
			if n.HasPosition {
				pos = n.Position
			}

			fmt.Fprintf(bw, "%5d%-5.5s%5.5s%5d%8.3f%8.3f%8.3f\n",
				n.ResID()%100000, n.ResName(), n.AtomName(), serial%100000,
				pos[0], pos[1], pos[2])

			return true
		})
	}

	box := sys.Box
	fmt.Fprintf(bw, "%10.5f%10.5f%10.5f\n", box[0], box[1], box[2])

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write gro: %w", err)
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
