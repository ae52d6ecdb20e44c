// Package relax implements the multi-grid relaxation solver, using
// double-buffered Jacobi-style sweeps: the Poisson pass for the bias potential and the Laplace
// pass for the point-contact weighting potential, on a cylindrically
// symmetric (r,z) mesh with sub-pixel contact boundaries, a vacuum
// ditch, and undepleted pinch-off bubbles.
package relax

import "hpgefield/pkg/geometry"

// Tag classifies a grid pixel for the relaxation kernel.
type Tag uint8

const (
	Bulk Tag = iota
	Fixed
	EdgeR
	EdgeZ
	Pinched
)

// EdgeDir names which neighbor direction carries the sub-pixel weight
// on an EdgeR/EdgeZ pixel.
type EdgeDir uint8

const (
	DirRPlus EdgeDir = iota
	DirRMinus
	DirZPlus
	DirZMinus
)

// Level is one resolution of the multi-grid stack: a dense (Nz+1) x
// (Nr+1) matrix of potentials, double-buffered, plus the per-pixel
// classification built for that resolution.
type Level struct {
	H      float64
	Nr, Nz int

	v    [][]float64 // [iz][ir], read buffer
	vNew [][]float64 // [iz][ir], write buffer

	tag       [][]Tag
	fixedVal  [][]float64
	vacuum    [][]bool    // true inside the ditch footprint
	edgeDir   [][]EdgeDir
	edgeDelta [][]float64 // signed sub-pixel offset, see classify.go
	vfrac     [][]float64 // charge-volume fraction, 1 for whole-bulk pixels
	undep     [][]bool    // "undepleted" marking from the Poisson pass
}

func newLevel(h float64, nr, nz int) *Level {
	l := &Level{H: h, Nr: nr, Nz: nz}
	l.v = alloc2D(nz+1, nr+1)
	l.vNew = alloc2D(nz+1, nr+1)
	l.tag = make([][]Tag, nz+1)
	l.fixedVal = alloc2D(nz+1, nr+1)
	l.vacuum = make([][]bool, nz+1)
	l.edgeDir = make([][]EdgeDir, nz+1)
	l.edgeDelta = alloc2D(nz+1, nr+1)
	l.vfrac = alloc2D(nz+1, nr+1)
	l.undep = make([][]bool, nz+1)
	for iz := 0; iz <= nz; iz++ {
		l.tag[iz] = make([]Tag, nr+1)
		l.vacuum[iz] = make([]bool, nr+1)
		l.edgeDir[iz] = make([]EdgeDir, nr+1)
		l.undep[iz] = make([]bool, nr+1)
		for ir := 0; ir <= nr; ir++ {
			l.vfrac[iz][ir] = 1
		}
	}
	return l
}

func alloc2D(nz, nr int) [][]float64 {
	m := make([][]float64, nz)
	for i := range m {
		m[i] = make([]float64, nr)
	}
	return m
}

// schedule picks 1-3 multi-grid levels, coarsest having about 100
// pixels across the larger crystal dimension, with integer step
// ratios between consecutive levels.
func schedule(geom geometry.Crystal, hFinal float64) []float64 {
	longest := geom.LZ
	if geom.RMax > longest {
		longest = geom.RMax
	}

	hCoarse := longest / 100.0
	if hCoarse <= hFinal {
		return []float64{hFinal}
	}

	ratio := int(hCoarse / hFinal)
	if ratio < 2 {
		return []float64{hFinal}
	}

	if ratio >= 4 {
		half := ratio / 2
		return []float64{hFinal * float64(2*half), hFinal * float64(half), hFinal}
	}
	return []float64{hFinal * float64(ratio), hFinal}
}

// prolongate fills this (finer) level's values by bilinear
// interpolation from a coarser level, child pixel i of each coarse
// cell at ratio = coarse.H/h steps.
func (l *Level) prolongate(coarse *Level) {
	ratio := int(coarse.H/l.H + 0.5)
	if ratio < 1 {
		ratio = 1
	}
	for Z := 0; Z < coarse.Nz; Z++ {
		for R := 0; R < coarse.Nr; R++ {
			v00 := coarse.v[Z][R]
			v01 := coarse.v[Z][R+1]
			v10 := coarse.v[Z+1][R]
			v11 := coarse.v[Z+1][R+1]
			for di := 0; di <= ratio; di++ {
				for dj := 0; dj <= ratio; dj++ {
					iz := Z*ratio + di
					ir := R*ratio + dj
					if iz > l.Nz || ir > l.Nr {
						continue
					}
					fz := float64(di) / float64(ratio)
					fr := float64(dj) / float64(ratio)
					l.v[iz][ir] = v00*(1-fr)*(1-fz) + v01*fr*(1-fz) + v10*(1-fr)*fz + v11*fr*fz
				}
			}
		}
	}
}

// restrict is the coarsening used by the prolongation round-trip test:
// it fills a coarse level by injection, each coarse pixel taking the
// value of the fine pixel at the same position. No averaging over
// neighboring fine pixels is done.
func (l *Level) restrict(fine *Level) {
	ratio := int(l.H/fine.H + 0.5)
	if ratio < 1 {
		ratio = 1
	}
	for Z := 0; Z <= l.Nz; Z++ {
		for R := 0; R <= l.Nr; R++ {
			iz := Z * ratio
			ir := R * ratio
			if iz > fine.Nz {
				iz = fine.Nz
			}
			if ir > fine.Nr {
				ir = fine.Nr
			}
			l.v[Z][R] = fine.v[iz][ir]
		}
	}
}

// initialGuess sets v(z,r) = BV*z/L*(1-r/R) + BV*r/R, the coarsest
// level's linear-ramp starting point.
func (l *Level) initialGuess(bv float64) {
	for iz := 0; iz <= l.Nz; iz++ {
		z := float64(iz) / float64(l.Nz)
		for ir := 0; ir <= l.Nr; ir++ {
			r := float64(ir) / float64(l.Nr)
			l.v[iz][ir] = bv*z*(1-r) + bv*r
		}
	}
}
