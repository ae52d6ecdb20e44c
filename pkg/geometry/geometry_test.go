package geometry

import "testing"

func testCrystal() Crystal {
	return Crystal{
		LZ:       50.5,
		RMax:     34.5,
		PCLength: 2.1,
		PCRadius: 1.4,
	}
}

func TestInsideBasicBounds(t *testing.T) {
	c := testCrystal()

	if !c.Inside(10, 25) {
		t.Fatalf("expected mid-crystal point to be inside")
	}
	if c.Inside(c.RMax+1, 25) {
		t.Fatalf("expected point beyond RMax to be outside")
	}
	if c.Inside(10, c.LZ) {
		t.Fatalf("z == LZ must be outside (half-open interval)")
	}
	if c.Inside(10, -1) {
		t.Fatalf("negative z must be outside")
	}
}

func TestInsidePointContactCavity(t *testing.T) {
	c := testCrystal()

	if c.Inside(1.0, 1.0) {
		t.Fatalf("point inside point-contact cavity must be outside crystal")
	}
	if !c.Inside(c.PCRadius+0.1, 1.0) {
		t.Fatalf("point just outside the PC radius at the same z should be inside")
	}
	if !c.Inside(1.0, c.PCLength+0.1) {
		t.Fatalf("point just above the PC length at the same r should be inside")
	}
}

func TestInsideBullet(t *testing.T) {
	c := testCrystal()
	c.TopBulletRadius = 5

	top := c.LZ - 0.01
	if c.Inside(c.RMax, top) {
		t.Fatalf("corner under a bulletized top must be cut off")
	}
	if !c.Inside(0, top) {
		t.Fatalf("axis point near the top must remain inside a bulletized crystal")
	}
}

func TestInsideTaper(t *testing.T) {
	c := testCrystal()
	c.TaperLength = 5

	if c.Inside(c.RMax, 1) {
		t.Fatalf("point beyond the 45-degree taper line must be outside")
	}
	if !c.Inside(1, 1) {
		t.Fatalf("point near the axis within the taper band must remain inside")
	}
}

func TestInsideMonotoneShrink(t *testing.T) {
	// Invariant 1: inside is monotone w.r.t. shrinking the crystal dimensions.
	big := testCrystal()
	small := big
	small.RMax = big.RMax * 0.5
	small.LZ = big.LZ * 0.5

	for r := 0.0; r < small.RMax; r += 1.7 {
		for z := 0.0; z < small.LZ; z += 1.3 {
			if small.Inside(r, z) && !big.Inside(r, z) {
				t.Fatalf("shrinking the crystal must not add volume at (r=%g,z=%g)", r, z)
			}
		}
	}
}

func TestInsideIdempotent(t *testing.T) {
	// Invariant 1: inside is idempotent (a pure total function of its inputs).
	c := testCrystal()
	for r := 0.0; r < c.RMax+2; r += 0.9 {
		for z := -1.0; z < c.LZ+2; z += 0.9 {
			if c.Inside(r, z) != c.Inside(r, z) {
				t.Fatalf("Inside(%g,%g) is not idempotent", r, z)
			}
		}
	}
}

func TestInsideCartesianMatchesCylindrical(t *testing.T) {
	c := testCrystal()
	x, y, z := 3.0, 4.0, 10.0
	if c.InsideCartesian(x, y, z) != c.Inside(5.0, z) {
		t.Fatalf("cartesian call site must reduce to r = hypot(x,y)")
	}
}

func TestValidate(t *testing.T) {
	c := testCrystal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid geometry, got %v", err)
	}

	bad := c
	bad.PCRadius = bad.RMax + 1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error when pc_radius exceeds xtal_radius")
	}

	bad = c
	bad.TaperLength = 5
	bad.WrapAroundRadius = 5
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error when taper and wrap-around are both set")
	}
}
