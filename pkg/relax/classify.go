package relax

import (
	"math"

	"hpgefield/pkg/geometry"
)

// classify rebuilds the tag, fixedVal, vacuum, edge, and vfrac arrays
// of a level at its own resolution. laplace selects the weighting-
// potential boundary values (1 on the point contact, 0 elsewhere)
// instead of the Poisson ones (0 on the point contact, bv elsewhere).
func (l *Level) classify(geom geometry.Crystal, bv float64, laplace bool) {
	pcFixed, outerFixed := 0.0, bv
	if laplace {
		pcFixed, outerFixed = 1.0, 0.0
	}

	for iz := 0; iz <= l.Nz; iz++ {
		z := float64(iz) * l.H
		for ir := 0; ir <= l.Nr; ir++ {
			r := float64(ir) * l.H

			l.vacuum[iz][ir] = inDitch(geom, r, z)
			if l.vacuum[iz][ir] {
				l.vfrac[iz][ir] = 0
			}

			switch {
			case z <= geom.PCLength && r <= geom.PCRadius:
				l.tag[iz][ir] = Fixed
				l.fixedVal[iz][ir] = pcFixed
			case !geom.Inside(r, z):
				l.tag[iz][ir] = Fixed
				l.fixedVal[iz][ir] = outerFixed
			case iz == l.Nz || ir == l.Nr:
				l.tag[iz][ir] = Fixed
				l.fixedVal[iz][ir] = outerFixed
			case iz == 0 && geom.WrapAroundRadius > 0 && r >= geom.WrapAroundRadius:
				l.tag[iz][ir] = Fixed
				l.fixedVal[iz][ir] = outerFixed
			default:
				l.tag[iz][ir] = Bulk
			}
		}
	}

	l.classifyEdges(geom)
	if laplace {
		l.applyPinch()
	}
}

// inDitch reports whether (r,z) lies in the vacuum ditch footprint
// between the wrap-around contact and the point contact.
func inDitch(geom geometry.Crystal, r, z float64) bool {
	if geom.WrapAroundRadius <= 0 || geom.DitchDepth <= 0 || geom.DitchThickness <= 0 {
		return false
	}
	rIn := geom.WrapAroundRadius - geom.DitchThickness
	return r >= rIn && r < geom.WrapAroundRadius && z >= 0 && z < geom.DitchDepth
}

// classifyEdges marks the pixels immediately outside the point
// contact's r=Rc and z=Lc boundaries when those fall off the grid,
// recording the sub-pixel weight f's defining offset delta and the
// direction of the affected neighbor.
func (l *Level) classifyEdges(geom geometry.Crystal) {
	rcOverH := geom.PCRadius / l.H
	irBoundary := int(math.Floor(rcOverH))
	deltaR := rcOverH - float64(irBoundary)
	if deltaR > 1e-9 && deltaR < 1-1e-9 {
		ir := irBoundary + 1
		if ir >= 0 && ir <= l.Nr {
			zMax := int(math.Floor(geom.PCLength / l.H))
			for iz := 0; iz <= zMax && iz <= l.Nz; iz++ {
				if l.tag[iz][ir] == Bulk {
					l.tag[iz][ir] = EdgeR
					l.edgeDir[iz][ir] = DirRMinus
					l.edgeDelta[iz][ir] = deltaR
					l.vfrac[iz][ir] = edgeVolumeFraction(deltaR)
				}
			}
		}
	}

	lcOverH := geom.PCLength / l.H
	izBoundary := int(math.Floor(lcOverH))
	deltaZ := lcOverH - float64(izBoundary)
	if deltaZ > 1e-9 && deltaZ < 1-1e-9 {
		iz := izBoundary + 1
		if iz >= 0 && iz <= l.Nz {
			rMax := int(math.Floor(geom.PCRadius / l.H))
			for ir := 0; ir <= rMax && ir <= l.Nr; ir++ {
				if l.tag[iz][ir] == Bulk {
					l.tag[iz][ir] = EdgeZ
					l.edgeDir[iz][ir] = DirZMinus
					l.edgeDelta[iz][ir] = deltaZ
					l.vfrac[iz][ir] = edgeVolumeFraction(deltaZ)
				}
			}
		}
	}
}

// edgeVolumeFraction scales the charge-carrying volume of a sub-pixel
// boundary cell by |2*delta|.
func edgeVolumeFraction(delta float64) float64 {
	return math.Abs(2 * delta)
}

// edgeWeight returns f for a sub-pixel boundary pixel: f=1/(1-delta)
// when the contact boundary lies outside this pixel (delta>0), or
// f=-1/delta when it lies inside (delta<0).
func edgeWeight(delta float64) float64 {
	if delta > 0 {
		return 1 / (1 - delta)
	}
	if delta < 0 {
		return -1 / delta
	}
	return 1
}

// applyPinch reclassifies pixels marked "undepleted" by the preceding
// Poisson pass as Pinched, for the weighting-potential pass.
func (l *Level) applyPinch() {
	for iz := range l.tag {
		for ir := range l.tag[iz] {
			if l.tag[iz][ir] == Bulk && l.undep[iz][ir] {
				l.tag[iz][ir] = Pinched
			}
		}
	}
}
