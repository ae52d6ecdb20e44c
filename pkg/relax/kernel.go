package relax

import (
	"math"

	"hpgefield/internal/consts"
)

// Impurity is the linear impurity profile rho(z) = N0 + M*z, in units
// of 1e10 e/cm^3 (N0) and 1e10 e/cm^3/cm (M).
type Impurity struct {
	N0 float64
	M  float64
}

// bubble tracks the solver-wide "first undepleted bubble" state used
// by the space-charge clamp: once a pixel's relaxed value dips below
// its neighbors', every further bubble detection in this solve is
// forced to that same recorded value.
type bubble struct {
	found bool
	volts float64
}

// sweepStats accumulates the per-pixel change statistics for one pass.
type sweepStats struct {
	maxAbs float64
	sumAbs float64
}

// sweep performs one Jacobi-like pass over the level: read from v,
// write to vNew, and returns the max/sum absolute change. chi selects
// the Poisson (1, with space charge and clamping) or Laplace (0, no
// space charge) kernel.
func (l *Level) sweep(imp Impurity, chi float64, bub *bubble) sweepStats {
	kappa := consts.KappaBulk * 4 * l.H * l.H
	var stats sweepStats

	// First pass: ordinary BULK/EDGE pixels (and the Poisson clamp).
	for iz := 0; iz <= l.Nz; iz++ {
		z := float64(iz) * l.H
		for ir := 0; ir <= l.Nr; ir++ {
			switch l.tag[iz][ir] {
			case Fixed:
				l.vNew[iz][ir] = l.v[iz][ir]
				continue
			case Pinched:
				continue // handled in the second pass
			}

			vOld := l.v[iz][ir]
			vNew := l.updateBulk(iz, ir, z, imp, chi, kappa)

			if chi > 0 {
				if vNew < 0 {
					vNew = 0
					l.undep[iz][ir] = true
				} else if l.isBubble(iz, ir, vNew) {
					if !bub.found {
						bub.found = true
						bub.volts = vNew
					}
					vNew = bub.volts
				} else {
					l.undep[iz][ir] = false
				}
			}

			l.vNew[iz][ir] = vNew
			d := math.Abs(vNew - vOld)
			if d > stats.maxAbs {
				stats.maxAbs = d
			}
			stats.sumAbs += d
		}
	}

	l.sweepPinched(&stats)

	l.v, l.vNew = l.vNew, l.v
	return stats
}

// updateBulk evaluates the weighted-neighbor-average kernel for a
// single BULK/EDGE_R/EDGE_Z pixel, including cylindrical geometric
// weights, per-face permittivity, the sub-pixel edge weight, and the
// axis/back-face reflection terms.
func (l *Level) updateBulk(iz, ir int, z float64, imp Impurity, chi, kappa float64) float64 {
	r := float64(ir) * l.H

	type term struct {
		v, w float64
	}
	var terms []term

	epsHere := l.epsilonAt(iz, ir)

	addTerm := func(jz, jr int, w float64) {
		if jr < 0 || jz < 0 || jr > l.Nr || jz > l.Nz {
			return
		}
		eps := faceEpsilon(epsHere, l.epsilonAt(jz, jr))
		if l.tag[iz][ir] == EdgeR && ((l.edgeDir[iz][ir] == DirRMinus && jr == ir-1) || (l.edgeDir[iz][ir] == DirRPlus && jr == ir+1)) {
			w *= edgeWeight(l.edgeDelta[iz][ir])
		}
		if l.tag[iz][ir] == EdgeZ && ((l.edgeDir[iz][ir] == DirZMinus && jz == iz-1) || (l.edgeDir[iz][ir] == DirZPlus && jz == iz+1)) {
			w *= edgeWeight(l.edgeDelta[iz][ir])
		}
		terms = append(terms, term{v: l.v[jz][jr], w: eps * w})
	}

	if ir == 0 {
		addTerm(iz, ir+1, 4)
	} else {
		wRPlus := 1 + 1/(2*r)
		wRMinus := 1 - 1/(2*r)
		addTerm(iz, ir+1, wRPlus)
		addTerm(iz, ir-1, wRMinus)
	}

	if iz == 0 {
		addTerm(iz+1, ir, 2)
	} else {
		addTerm(iz+1, ir, 1)
		addTerm(iz-1, ir, 1)
	}

	var num, den float64
	for _, t := range terms {
		num += t.v * t.w
		den += t.w
	}
	if den == 0 {
		return l.v[iz][ir]
	}

	vfrac := l.vfrac[iz][ir]
	charge := chi * vfrac * (imp.N0 + imp.M*z) * kappa
	return num/den + charge
}

// epsilonAt returns the relative permittivity of pixel (iz,ir): vacuum
// inside the ditch footprint, germanium elsewhere.
func (l *Level) epsilonAt(iz, ir int) float64 {
	if l.vacuum[iz][ir] {
		return consts.EpsilonVacuum
	}
	return consts.EpsilonGe
}

func faceEpsilon(a, b float64) float64 {
	if a == b {
		return a
	}
	return (a + b) / 2
}

// isBubble reports whether vNew fell below the minimum of the
// pixel's existing (pre-sweep) in-grid neighbor values, indicating a
// newly formed undepleted island.
func (l *Level) isBubble(iz, ir int, vNew float64) bool {
	min := math.MaxFloat64
	any := false
	for _, n := range [][2]int{{iz + 1, ir}, {iz - 1, ir}, {iz, ir + 1}, {iz, ir - 1}} {
		jz, jr := n[0], n[1]
		if jz < 0 || jr < 0 || jz > l.Nz || jr > l.Nr {
			continue
		}
		any = true
		if l.v[jz][jr] < min {
			min = l.v[jz][jr]
		}
	}
	return any && vNew < min
}

// sweepPinched implements the two-pass pinch-off rule: the first pass
// averages the values of the BULK neighbors of all Pinched pixels,
// each neighbor counted with equal weight (no area weighting), and
// the second pass gives every Pinched pixel in the crystal that
// single averaged value.
func (l *Level) sweepPinched(stats *sweepStats) {
	var sum, weight float64
	var any bool

	for iz := 0; iz <= l.Nz; iz++ {
		for ir := 0; ir <= l.Nr; ir++ {
			if l.tag[iz][ir] != Pinched {
				continue
			}
			any = true
			for _, n := range [][2]int{{iz + 1, ir}, {iz - 1, ir}, {iz, ir + 1}, {iz, ir - 1}} {
				jz, jr := n[0], n[1]
				if jz < 0 || jr < 0 || jz > l.Nz || jr > l.Nr {
					continue
				}
				if l.tag[jz][jr] != Bulk {
					continue
				}
				sum += l.v[jz][jr]
				weight++
			}
		}
	}
	if !any {
		return
	}

	shared := l.v[0][0]
	if weight > 0 {
		shared = sum / weight
	}

	for iz := 0; iz <= l.Nz; iz++ {
		for ir := 0; ir <= l.Nr; ir++ {
			if l.tag[iz][ir] != Pinched {
				continue
			}
			d := math.Abs(shared - l.v[iz][ir])
			if d > stats.maxAbs {
				stats.maxAbs = d
			}
			stats.sumAbs += d
			l.vNew[iz][ir] = shared
		}
	}
}
