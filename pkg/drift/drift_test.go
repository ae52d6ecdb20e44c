package drift

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hpgefield/pkg/field"
	"hpgefield/pkg/geometry"
	"hpgefield/pkg/veltab"
)

// writeSyntheticTables builds a trivial on-axis field/weighting-potential
// pair over r in [0,5], z in [0,10] at h=1: E_r=0 everywhere, E_z=-1000
// V/cm (pointing toward z=0), and WP(r,z) = clamp(1-z/10, 0, 1). This
// gives a hole a straight-line path toward the z=0 point contact and an
// electron a straight-line path toward z=10. Built as a minimal fixture
// in the same format the production code itself writes.
func writeSyntheticTables(t *testing.T) (*field.Store, string) {
	t.Helper()
	dir := t.TempDir()

	fieldPath := filepath.Join(dir, "field.dat")
	f, err := os.Create(fieldPath)
	if err != nil {
		t.Fatalf("create field file: %v", err)
	}
	fmt.Fprintln(f, "## r(mm) z(mm) V(V) |E|(V/cm) E_r(V/cm) E_z(V/cm)")
	for ir := 0; ir <= 5; ir++ {
		for iz := 0; iz <= 10; iz++ {
			fmt.Fprintf(f, "%d %d 0 1000 0 -1000\n", ir, iz)
		}
		fmt.Fprintln(f)
	}
	f.Close()

	wpPath := filepath.Join(dir, "wp.dat")
	w, err := os.Create(wpPath)
	if err != nil {
		t.Fatalf("create wp file: %v", err)
	}
	fmt.Fprintln(w, "## r(mm) z(mm) WP")
	for ir := 0; ir <= 5; ir++ {
		for iz := 0; iz <= 10; iz++ {
			wp := 1 - float64(iz)/10
			if wp < 0 {
				wp = 0
			}
			if wp > 1 {
				wp = 1
			}
			fmt.Fprintf(w, "%d %d %g\n", ir, iz, wp)
		}
		fmt.Fprintln(w)
	}
	w.Close()

	store, err := field.LoadField(fieldPath)
	if err != nil {
		t.Fatalf("LoadField: %v", err)
	}
	if _, err := field.LoadWeightingPotential(wpPath, store); err != nil {
		t.Fatalf("LoadWeightingPotential: %v", err)
	}
	return store, dir
}

const isotropicVelTable = `0 0 0 0 0 0 0
1000 0.1 0.1 0.1 0.1 0.1 0.1
e 1 0 1e9 1
h 1 0 1e9 1
`

func testGeom() geometry.Crystal {
	return geometry.Crystal{LZ: 10, RMax: 5}
}

func testSetup(t *testing.T, nCalc int) *Setup {
	t.Helper()
	store, _ := writeSyntheticTables(t)
	vel, err := veltab.Parse(strings.NewReader(isotropicVelTable))
	if err != nil {
		t.Fatalf("veltab.Parse: %v", err)
	}
	return NewSetup(testGeom(), store, vel, Config{
		DtCalc: 1,
		NCalc:  nCalc,
	})
}

func TestMakeSignalOutsideDetector(t *testing.T) {
	s := testSetup(t, 200)
	if _, err := s.MakeSignal(Vec3{X: 0, Y: 0, Z: 50}, 1); err != ErrOutsideDetector {
		t.Fatalf("expected ErrOutsideDetector, got %v", err)
	}
}

func TestMakeSignalHoleDriftsTowardContact(t *testing.T) {
	s := testSetup(t, 200)
	sig, err := s.MakeSignal(Vec3{X: 0, Y: 0, Z: 5}, 1)
	if err != nil {
		if _, ok := err.(*TruncatedError); !ok {
			t.Fatalf("MakeSignal: %v", err)
		}
	}

	var total float64
	for _, v := range sig {
		total += v
	}
	// Hole starts at wp=0.5 and drifts toward the wp=1 contact: total
	// induced charge should approach q*(1-0.5) = 0.5.
	if total < 0.4 || total > 0.51 {
		t.Fatalf("total induced charge = %g, want ~0.5", total)
	}

	if s.holeTrace[0] != (Vec3{X: 0, Y: 0, Z: 5}) {
		t.Fatalf("hole trace not recorded at step 0: %+v", s.holeTrace[0])
	}
}

func TestMakeSignalElectronDriftsOppositeDirection(t *testing.T) {
	s := testSetup(t, 200)
	sig, err := s.MakeSignal(Vec3{X: 0, Y: 0, Z: 5}, -1)
	if err != nil {
		if _, ok := err.(*TruncatedError); !ok {
			t.Fatalf("MakeSignal: %v", err)
		}
	}

	var total float64
	for _, v := range sig {
		total += v
	}
	// Electron starts at wp=0.5 and drifts toward the wp=0 far contact:
	// induced charge is q*(0-0.5) = -1*(−0.5) = 0.5 as well (Ramo charge
	// from a negative carrier moving to lower weighting potential).
	if total < 0.4 || total > 0.51 {
		t.Fatalf("total induced charge = %g, want ~0.5", total)
	}
}

func TestMakeSignalHoleTruncatedInHighField(t *testing.T) {
	// A one-step budget is too small for the loop to ever reach its
	// N_calc-2 "nearly finished" check or leave the field grid, so the
	// collecting carrier's step loop runs out without a termination
	// condition firing: the fatal case for a collecting hole that never
	// finishes.
	s := testSetup(t, 1)
	s.Cfg.HoleCollects = true
	_, err := s.MakeSignal(Vec3{X: 0, Y: 0, Z: 5}, 1)
	if _, ok := err.(*TruncatedError); !ok {
		t.Fatalf("expected *TruncatedError, got %v", err)
	}
}
