package veltab

import (
	"math"
	"strings"
	"testing"
)

const sampleTable = `# field(V/cm) v100 v110 v111 per carrier, then e/h summary lines
0 0 0 0 0 0 0
1000 1e7 9e6 9.5e6 8e6 7e6 7.5e6
e 1e4 -0.5 1e7 1
h 1e4 -0.5 1e7 1
`

func TestParseValid(t *testing.T) {
	tbl, err := Parse(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tbl.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(tbl.rows))
	}
}

func TestParseDuplicateEFails(t *testing.T) {
	bad := `0 0 0 0 0 0 0
1000 1e7 9e6 9.5e6 8e6 7e6 7.5e6
1000 1e7 9e6 9.5e6 8e6 7e6 7.5e6
e 1e4 -0.5 1e7 1
h 1e4 -0.5 1e7 1
`
	_, err := Parse(strings.NewReader(bad))
	if err == nil {
		t.Fatalf("expected MalformedTableError for duplicate E")
	}
	if _, ok := err.(*MalformedTableError); !ok {
		t.Fatalf("expected *MalformedTableError, got %T: %v", err, err)
	}
}

func TestParseMissingSummaryFails(t *testing.T) {
	bad := `0 0 0 0 0 0 0
1000 1e7 9e6 9.5e6 8e6 7e6 7.5e6
e 1e4 -0.5 1e7 1
`
	_, err := Parse(strings.NewReader(bad))
	if err == nil {
		t.Fatalf("expected MalformedTableError for missing h summary")
	}
}

func TestQueryAxisAlignedElectron(t *testing.T) {
	tbl, err := Parse(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, err := tbl.Query(-1, Vec3{X: 0, Y: 0, Z: 1000})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if math.Abs(v.X) > 1e-6 || math.Abs(v.Y) > 1e-6 {
		t.Fatalf("axis query has transverse component: %+v", v)
	}
	if v.Z >= 0 {
		t.Fatalf("electron should drift against E (negative z), got %+v", v)
	}
	if math.Abs(math.Abs(v.Z)-1e7) > 1 {
		t.Fatalf("|v_z| = %g, want ~1e7", math.Abs(v.Z))
	}
}

func TestQueryAxisAlignedHole(t *testing.T) {
	tbl, err := Parse(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, err := tbl.Query(1, Vec3{X: 0, Y: 0, Z: 1000})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if v.Z <= 0 {
		t.Fatalf("hole should drift along E (positive z), got %+v", v)
	}
}

func TestQueryOutOfFieldRange(t *testing.T) {
	tbl, err := Parse(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := tbl.Query(-1, Vec3{X: 0, Y: 0, Z: 1e9}); err != ErrOutOfField {
		t.Fatalf("expected ErrOutOfField, got %v", err)
	}
}

func TestQueryZeroField(t *testing.T) {
	tbl, err := Parse(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, err := tbl.Query(-1, Vec3{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if v != (Vec3{}) {
		t.Fatalf("zero field should give zero velocity, got %+v", v)
	}
}

func TestCorrectOutOfRange(t *testing.T) {
	tbl, err := Parse(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := tbl.Correct(300); err != ErrOutOfTemperatureRange {
		t.Fatalf("expected ErrOutOfTemperatureRange, got %v", err)
	}
}

func TestCorrectRescalesAndRepreparesAnchor(t *testing.T) {
	tbl, err := Parse(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := tbl.Correct(90); err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if !tbl.corrected {
		t.Fatalf("corrected flag not set")
	}
	// Anchor row stays at zero velocity.
	if tbl.rows[0].VE100 != 0 {
		t.Fatalf("anchor row should remain zero after correction")
	}
}
