package relax

import (
	"math"

	"hpgefield/internal/consts"
)

// Capacitance returns an informational point-contact capacitance
// estimate (pF) from a converged Result, by integrating the stored
// energy density of the bias field over the crystal volume and using
// C = 2*U/V^2. It is a diagnostic, not the external capacitance
// post-processing tool a full analysis pipeline would also run.
func Capacitance(r *Result, biasVolts float64) float64 {
	if biasVolts == 0 {
		return 0
	}

	var energy float64 // 0.5 * eps0 * eps_r * |E|^2 integrated over volume, in SI-ish mm/V units
	h := r.H

	for iz := 0; iz < r.Nz; iz++ {
		for ir := 0; ir < r.Nr; ir++ {
			rr := float64(ir) * h
			er := (r.V[iz][ir+1] - r.V[iz][ir]) / h
			ez := (r.V[iz+1][ir] - r.V[iz][ir]) / h
			emag2 := er*er + ez*ez

			eps := consts.EpsilonGe
			cellVolume := 2 * math.Pi * rr * h * h // cylindrical shell volume element
			energy += 0.5 * eps * emag2 * cellVolume
		}
	}

	const eps0PfPerMm = 8.854e-3 // vacuum permittivity in pF/mm
	energy *= eps0PfPerMm

	return 2 * energy / (biasVolts * biasVolts)
}
