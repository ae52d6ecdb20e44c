// Package geometry holds the immutable crystal shape and answers
// point-containment queries for it (the "Geometry Oracle" of the field
// solver and drift integrator).
package geometry

import (
	"fmt"
	"math"
)

// Crystal describes a cylindrically symmetric coaxial detector: a can
// of radius RMax and length LZ, optionally bulletized at the top,
// tapered at the bottom, with a cylindrical point-contact cavity cut
// out near the axis and either a wrap-around contact with a ditch or
// a 45-degree taper (not both) forming the outer HV electrode.
type Crystal struct {
	LZ   float64 // axial length (mm)
	RMax float64 // outer radius (mm)

	TopBulletRadius float64 // top bullet radius b_t (mm), 0 = flat

	PCLength float64 // point-contact length L_c (mm)
	PCRadius float64 // point-contact radius R_c (mm)

	TaperLength float64 // 45-degree bottom taper length L_t (mm), 0 = none

	WrapAroundRadius float64 // wrap-around radius R_w (mm), 0 = none
	DitchDepth       float64 // ditch depth d_d (mm)
	DitchThickness   float64 // ditch width d_w (mm)
}

// Validate checks the invariants from the data model: non-negative
// dimensions, the point contact no larger than the can, and at most
// one of {wrap-around+ditch, taper} populated.
func (c Crystal) Validate() error {
	if c.RMax <= 0 || c.LZ <= 0 {
		return fmt.Errorf("geometry: xtal_radius and xtal_length must be positive")
	}
	if c.PCRadius < 0 || c.PCLength < 0 {
		return fmt.Errorf("geometry: pc_radius and pc_length must be non-negative")
	}
	if c.PCRadius > c.RMax {
		return fmt.Errorf("geometry: pc_radius (%g) exceeds xtal_radius (%g)", c.PCRadius, c.RMax)
	}
	if c.PCLength > c.LZ {
		return fmt.Errorf("geometry: pc_length (%g) exceeds xtal_length (%g)", c.PCLength, c.LZ)
	}
	hasWrap := c.WrapAroundRadius > 0 || c.DitchDepth > 0
	hasTaper := c.TaperLength > 0
	if hasWrap && hasTaper {
		return fmt.Errorf("geometry: wrap-around/ditch and bottom taper are mutually exclusive")
	}
	return nil
}

// Inside reports whether the point (r,z), given in cylindrical
// coordinates, lies within the active crystal volume: inside the can,
// outside the bulletized top cutoff, outside the point-contact cavity,
// and outside the 45-degree bottom taper cutoff.
func (c Crystal) Inside(r, z float64) bool {
	if z < 0 || z >= c.LZ {
		return false
	}
	if r > c.RMax {
		return false
	}
	if c.TopBulletRadius > 0 && z > c.LZ-c.TopBulletRadius {
		dz := z - (c.LZ - c.TopBulletRadius)
		arg := c.TopBulletRadius*c.TopBulletRadius - dz*dz
		if arg < 0 {
			arg = 0
		}
		limit := (c.RMax - c.TopBulletRadius) + math.Sqrt(arg)
		if r > limit {
			return false
		}
	}
	if z <= c.PCLength && r <= c.PCRadius {
		return false
	}
	if c.TaperLength > 0 && z < c.TaperLength && r > c.LZ-c.TaperLength+z {
		return false
	}
	return true
}

// InsideCartesian is the (x,y,z) call site: it reduces to Inside after
// computing the cylindrical radius r = sqrt(x^2+y^2).
func (c Crystal) InsideCartesian(x, y, z float64) bool {
	r := math.Hypot(x, y)
	return c.Inside(r, z)
}
