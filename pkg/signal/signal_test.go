package signal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hpgefield/pkg/drift"
	"hpgefield/pkg/field"
	"hpgefield/pkg/geometry"
	"hpgefield/pkg/veltab"
)

func stepInput(n int) []float64 {
	in := make([]float64, n)
	for i := range in {
		in[i] = 1
	}
	return in
}

func TestRCIntegrateStepResponseOneTau(t *testing.T) {
	// Invariant 6: tau = 1 time constant (dt == tau) rises to 1-1/e
	// within one sample, within 1e-3.
	in := stepInput(5)
	out := make([]float64, 5)
	RCIntegrate(in, out, 1, 1)

	want := 1 - 0.36787944117
	if diff := out[1] - want; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("out[1] = %g, want %g +/- 1e-3", out[1], want)
	}
}

func TestRCIntegrateScenario4(t *testing.T) {
	in := stepInput(5)
	out := make([]float64, 5)
	RCIntegrate(in, out, 30, 10)

	if diff := out[1] - 0.283; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("out[1] = %g, want ~0.283", out[1])
	}
	if diff := out[2] - 0.487; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("out[2] = %g, want ~0.487", out[2])
	}
}

func TestRCIntegrateAliasingSafe(t *testing.T) {
	// Invariant 7: in == out must match the separate-buffer result.
	separate := make([]float64, 6)
	inA := stepInput(6)
	RCIntegrate(inA, separate, 5, 1)

	aliased := stepInput(6)
	RCIntegrate(aliased, aliased, 5, 1)

	for i := range separate {
		if diff := aliased[i] - separate[i]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("aliased[%d] = %g, separate[%d] = %g", i, aliased[i], i, separate[i])
		}
	}
}

func TestRCIntegrateFastTauShifts(t *testing.T) {
	in := []float64{1, 2, 3, 4}
	out := make([]float64, 4)
	RCIntegrate(in, out, 0.01, 1)

	want := []float64{0, 1, 2, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %g, want %g", i, out[i], want[i])
		}
	}
}

// syntheticTables builds the same minimal on-axis field/weighting-
// potential pair used by pkg/drift's tests: E_r=0, E_z=-1000 V/cm
// (pointing toward z=0), WP(r,z) = clamp(1-z/10, 0, 1).
func syntheticTables(t *testing.T) *field.Store {
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
	return store
}

const isotropicVelTable = `0 0 0 0 0 0 0
1000 0.1 0.1 0.1 0.1 0.1 0.1
e 1 0 1e9 1
h 1 0 1e9 1
`

// TestGetSignalCollectsUnitCharge checks invariant 5: for a point well
// inside a fully-depleted, fully-traversed detector, the hole and
// electron contributions sum to a unit charge regardless of the
// carriers' shared starting weighting potential.
func TestGetSignalCollectsUnitCharge(t *testing.T) {
	store := syntheticTables(t)
	vel, err := veltab.Parse(strings.NewReader(isotropicVelTable))
	if err != nil {
		t.Fatalf("veltab.Parse: %v", err)
	}
	geom := geometry.Crystal{LZ: 10, RMax: 5}

	d := drift.NewSetup(geom, store, vel, drift.Config{
		DtCalc: 1,
		NCalc:  200,
	})
	p := NewProcessor(d, Config{NOut: 50, DtOut: 4, Tau: 0})

	out, err := p.GetSignal(drift.Vec3{X: 0, Y: 0, Z: 5})
	if err != nil {
		if _, ok := err.(*drift.TruncatedError); !ok {
			t.Fatalf("GetSignal: %v", err)
		}
	}

	final := out[len(out)-1]
	if final < 0.9 || final > 1.05 {
		t.Fatalf("final collected charge = %g, want ~1", final)
	}
}
