package units

import "testing"

func TestLengthFactorsInvert(t *testing.T) {
	t.Parallel()

	if got := AngstromPerNm * NmPerAngstrom; got != 1.0 {
		t.Errorf("factors do not invert: %v", got)
	}

	if got := 15.0 * NmPerAngstrom; got != 1.5 {
		t.Errorf("15 angstroms = %v nm, want 1.5", got)
	}
}
