package relax

import (
	"fmt"

	"hpgefield/pkg/geometry"
)

// NotConvergedError is a non-fatal warning: the solver hit
// max_iterations with the max per-pixel change still above tolerance.
// The returned Result is still usable.
type NotConvergedError struct {
	MaxDelta  float64
	Tolerance float64
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("relax: not converged: max delta %g > tolerance %g", e.MaxDelta, e.Tolerance)
}

const (
	poissonTol = 1e-9
	laplaceTol = 1e-10
)

// Solver owns the geometry, impurity profile, and bias for one
// detector and runs the bias (Poisson) and weighting (Laplace)
// relaxation passes.
type Solver struct {
	Geom        geometry.Crystal
	Impurity    Impurity
	BiasVolts   float64
	HFinal      float64
	MaxIter     int
	nTypeFlip   bool // true when the impurity/bias sign was flipped internally
}

// NewSolver validates the geometry and impurity/bias sign convention
// (bias and N0 must have opposite signs) and returns a ready Solver.
// For n-type material (N0 > 0) it negates bias, gradient, and
// concentration internally so every potential iterated by the kernel
// stays non-negative; Result flips the sign back on the way out.
func NewSolver(geom geometry.Crystal, imp Impurity, biasVolts, hFinal float64, maxIter int) (*Solver, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if hFinal <= 0 {
		return nil, fmt.Errorf("relax: grid spacing must be positive")
	}
	if biasVolts == 0 || imp.N0 == 0 {
		return nil, fmt.Errorf("relax: bias and impurity_z0 must be non-zero and of opposite sign")
	}
	if (biasVolts > 0) == (imp.N0 > 0) {
		return nil, fmt.Errorf("relax: bias (%g) and impurity_z0 (%g) must have opposite signs", biasVolts, imp.N0)
	}

	s := &Solver{Geom: geom, Impurity: imp, BiasVolts: biasVolts, HFinal: hFinal, MaxIter: maxIter}
	if imp.N0 > 0 {
		s.nTypeFlip = true
		s.BiasVolts = -biasVolts
		s.Impurity = Impurity{N0: -imp.N0, M: -imp.M}
	}
	return s, nil
}

// Result holds the converged bias potential, weighting potential, and
// solver diagnostics at the final grid spacing.
type Result struct {
	H        float64
	Nr, Nz   int
	V        [][]float64 // bias potential, z/r sign-corrected for output
	WP       [][]float64 // weighting potential, always in [0,1]
	Pinched  [][]bool
	Bubble   bool
	BubbleV  float64
	Fully    bool // fully depleted (no undepleted/bubble pixels remain)
	NotConv  []error
}

// Solve runs the full multi-grid schedule: Poisson pass for the bias
// potential, then Laplace pass for the weighting potential (reusing
// the Poisson pass's undepleted marking to seed PINCHED pixels).
func (s *Solver) Solve() (*Result, error) {
	spacings := schedule(s.Geom, s.HFinal)

	var bias *Level
	var bub bubble
	maxIter := s.MaxIter
	var warnings []error

	for li, h := range spacings {
		nr := int(s.Geom.RMax / h)
		nz := int(s.Geom.LZ / h)
		level := newLevel(h, nr, nz)

		if li == 0 {
			level.classify(s.Geom, s.BiasVolts, false)
			level.initialGuess(s.BiasVolts)
			reinforceFixed(level)
			assembleCoarseDirectSolve(level, s.Impurity)
		} else {
			level.classify(s.Geom, s.BiasVolts, false)
			level.prolongate(bias)
			reinforceFixed(level)
		}

		tol := poissonTol
		iter := maxIter
		if li > 0 {
			iter = maxIter / 2
		}
		if err := relaxUntil(level, s.Impurity, 1, tol, iter, &bub); err != nil {
			warnings = append(warnings, err)
		}

		bias = level
	}

	weight, wWarn := s.solveWeighting(bias)
	if wWarn != nil {
		warnings = append(warnings, wWarn)
	}

	return s.buildResult(bias, weight, bub, warnings), nil
}

// solveWeighting runs the Laplace pass at the same multi-level
// schedule, reclassifying pixels the Poisson pass left "undepleted"
// as PINCHED.
func (s *Solver) solveWeighting(bias *Level) (*Level, error) {
	spacings := schedule(s.Geom, s.HFinal)

	var wp *Level
	maxIter := s.MaxIter
	var lastErr error

	for li, h := range spacings {
		nr := int(s.Geom.RMax / h)
		nz := int(s.Geom.LZ / h)
		level := newLevel(h, nr, nz)
		level.undep = sampleUndep(bias, level)
		level.classify(s.Geom, s.BiasVolts, true) // applyPinch turns sampled undep into Pinched

		if li == 0 {
			level.initialGuess(1)
		} else {
			level.prolongate(wp)
		}
		reinforceFixed(level)

		tol := laplaceTol
		iter := maxIter
		if li > 0 {
			iter = maxIter / 2
		}
		var bub bubble
		if err := relaxUntil(level, Impurity{}, 0, tol, iter, &bub); err != nil {
			lastErr = err
		}
		wp = level
	}
	return wp, lastErr
}

// sampleUndep resamples the Poisson-pass "undepleted" flag from the
// (possibly differently spaced) converged bias level onto a new
// level's resolution, nearest-neighbor.
func sampleUndep(bias, level *Level) [][]bool {
	out := make([][]bool, level.Nz+1)
	ratio := bias.H / level.H
	for iz := range out {
		out[iz] = make([]bool, level.Nr+1)
		biz := int(float64(iz) / ratio)
		if biz > bias.Nz {
			biz = bias.Nz
		}
		for ir := range out[iz] {
			bir := int(float64(ir) / ratio)
			if bir > bias.Nr {
				bir = bias.Nr
			}
			out[iz][ir] = bias.undep[biz][bir]
		}
	}
	return out
}

// reinforceFixed stamps every FIXED pixel's value into both buffers
// so the kernel's neighbor lookups always see the boundary condition,
// never a stale zero from allocation.
func reinforceFixed(l *Level) {
	for iz := range l.tag {
		for ir := range l.tag[iz] {
			if l.tag[iz][ir] == Fixed {
				l.v[iz][ir] = l.fixedVal[iz][ir]
				l.vNew[iz][ir] = l.fixedVal[iz][ir]
			}
		}
	}
}

// relaxUntil runs sweeps until the max-abs change falls under tol. If
// that has not happened after maxIter sweeps, it runs one more sweep
// and reports NotConvergedError unless that sweep's max-abs change is
// under tol.
func relaxUntil(l *Level, imp Impurity, chi, tol float64, maxIter int, bub *bubble) error {
	for i := 0; i < maxIter; i++ {
		stats := l.sweep(imp, chi, bub)
		if stats.maxAbs < tol {
			return nil
		}
	}
	final := l.sweep(imp, chi, bub)
	if final.maxAbs < tol {
		return nil
	}
	return &NotConvergedError{MaxDelta: final.maxAbs, Tolerance: tol}
}

func (s *Solver) buildResult(bias, wp *Level, bub bubble, warnings []error) *Result {
	sign := 1.0
	if s.nTypeFlip {
		sign = -1.0
	}

	v := alloc2D(bias.Nz+1, bias.Nr+1)
	anyUndep := false
	for iz := range v {
		for ir := range v[iz] {
			v[iz][ir] = sign * bias.v[iz][ir]
			if bias.undep[iz][ir] {
				anyUndep = true
			}
		}
	}

	pinched := make([][]bool, wp.Nz+1)
	for iz := range pinched {
		pinched[iz] = make([]bool, wp.Nr+1)
		for ir := range pinched[iz] {
			pinched[iz][ir] = wp.tag[iz][ir] == Pinched
		}
	}

	return &Result{
		H: bias.H, Nr: bias.Nr, Nz: bias.Nz,
		V: v, WP: wp.v, Pinched: pinched,
		Bubble: bub.found, BubbleV: sign * bub.volts,
		Fully:   !anyUndep && !bub.found,
		NotConv: warnings,
	}
}
