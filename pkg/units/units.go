// Package units holds the length-unit conversion factors applied at
// file-format boundaries. The graph model stores positions in nanometers;
// PDB files use angstroms.
package units

// AngstromPerNm converts nanometers to angstroms.
const AngstromPerNm = 10.0

// NmPerAngstrom converts angstroms to nanometers.
const NmPerAngstrom = 1.0 / AngstromPerNm
