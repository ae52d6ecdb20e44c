// Package drift steps a charge through the precomputed field tables,
// summing the Shockley-Ramo induced charge on the point contact as it
// moves, for one electron or hole starting at an arbitrary point.
package drift

import (
	"errors"
	"fmt"
	"math"

	"hpgefield/pkg/field"
	"hpgefield/pkg/geometry"
	"hpgefield/pkg/veltab"
)

// ErrOutsideDetector reports a start point rejected by the geometry oracle.
var ErrOutsideDetector = errors.New("drift: start point outside detector")

// ErrOutOfField reports that step 0 itself falls outside the loaded
// field grid (distinct from leaving the field mid-drift, which is
// handled by the tail extrapolation below).
var ErrOutOfField = errors.New("drift: start point outside field grid")

// TruncatedError reports a collecting carrier that exhausted its step
// budget while still in a field strong enough to keep drifting.
type TruncatedError struct{}

func (e *TruncatedError) Error() string { return "drift: truncated: ran out of steps in high field" }

// Vec3 is re-exported for callers that build start points without
// importing pkg/veltab directly.
type Vec3 = veltab.Vec3

// Config holds the per-detector drift parameters read from the
// configuration file (xtal_temp, step_time_calc, ...).
type Config struct {
	DtCalc          float64 // step_time_calc, ns
	NCalc           int     // time_steps_calc
	ChargeCloudSize float64 // mm
	UseDiffusion    bool
	TempK           float64
	HoleCollects    bool // true for p-type material: holes are the "collecting" carrier
}

// Setup owns one event's drift trace buffers, lazily (re)allocated to
// the configured NCalc and reused across calls, per the single-owner,
// single-threaded resource model.
type Setup struct {
	Geom  geometry.Crystal
	Field *field.Store
	Vel   *veltab.Table
	Cfg   Config

	holeTrace []Vec3
	elecTrace []Vec3

	// Diagnostics from the most recent MakeSignal call for the
	// configured collecting carrier, consumed by the post-processor's
	// Gaussian convolution width calculation.
	LastInitialVel       float64
	LastFinalSpeed       float64
	LastFinalChargeSize2 float64
}

func NewSetup(geom geometry.Crystal, fieldStore *field.Store, vel *veltab.Table, cfg Config) *Setup {
	return &Setup{Geom: geom, Field: fieldStore, Vel: vel, Cfg: cfg}
}

func (s *Setup) ensureBuffers() {
	if len(s.holeTrace) != s.Cfg.NCalc {
		s.holeTrace = make([]Vec3, s.Cfg.NCalc)
		s.elecTrace = make([]Vec3, s.Cfg.NCalc)
	}
}

func (s *Setup) traceFor(q float64) []Vec3 {
	if q > 0 {
		return s.holeTrace
	}
	return s.elecTrace
}

func (s *Setup) isCollecting(q float64) bool {
	if s.Cfg.HoleCollects {
		return q > 0
	}
	return q < 0
}

// cartesianField converts the field store's cylindrical (E_r,E_z)
// components at p into a Cartesian vector for the velocity table query.
func (s *Setup) cartesianField(p Vec3) (Vec3, error) {
	r := math.Hypot(p.X, p.Y)
	e, err := s.Field.EFieldAt(p.X, p.Y, p.Z)
	if err != nil {
		return Vec3{}, err
	}
	if r == 0 {
		return Vec3{X: 0, Y: 0, Z: e.Z}, nil
	}
	return Vec3{X: e.R * p.X / r, Y: e.R * p.Y / r, Z: e.Z}, nil
}

func (s *Setup) wpotential(p Vec3) (float64, error) {
	return s.Field.WPotentialAt(p.X, p.Y, p.Z)
}

func (s *Setup) driftVelocity(p Vec3, q float64) (Vec3, error) {
	e, err := s.cartesianField(p)
	if err != nil {
		return Vec3{}, err
	}
	return s.Vel.Query(q, e)
}

// diffusionD is the per-step variance added to the charge cloud when
// diffusion is enabled; fixed placeholder increment, the transport
// model is not modeled here.
func diffusionD(tempK, dt float64) float64 {
	const diffusionConst = 1e-5 // mm^2/ns at 77K, linear in T/77
	return diffusionConst * (tempK / 77.0) * dt
}

// MakeSignal drifts one carrier of charge q from start, returning the
// per-step induced-charge contribution. The carrier-specific trace
// buffer is recorded as a side effect for diagnostic output.
func (s *Setup) MakeSignal(start Vec3, q float64) ([]float64, error) {
	s.ensureBuffers()
	if !s.Geom.InsideCartesian(start.X, start.Y, start.Z) {
		return nil, ErrOutsideDetector
	}

	trace := s.traceFor(q)
	signal := make([]float64, s.Cfg.NCalc)
	collecting := s.isCollecting(q)

	p := start
	wPrev, err := s.wpotential(p)
	if err != nil {
		return nil, fmt.Errorf("drift: %w", ErrOutOfField)
	}

	var lastVel Vec3
	var prevSpeed, chargeSize2 float64
	broke := false
	lowField := false
	tailStart := -1
	t := 0

	for ; t < s.Cfg.NCalc; t++ {
		v, verr := s.driftVelocity(p, q)
		if verr != nil {
			broke = true
			tailStart = t
			break
		}
		trace[t] = p
		speed := v.Norm()

		if t == 1 {
			prevSpeed = speed
			chargeSize2 = s.Cfg.ChargeCloudSize * s.Cfg.ChargeCloudSize
			if collecting {
				s.LastInitialVel = speed
			}
		} else if t > 1 && s.Cfg.UseDiffusion && prevSpeed > 0 {
			ratio := speed / prevSpeed
			chargeSize2 = chargeSize2*ratio*ratio + diffusionD(s.Cfg.TempK, s.Cfg.DtCalc)
			prevSpeed = speed
		}
		if collecting {
			s.LastFinalSpeed = speed
			s.LastFinalChargeSize2 = chargeSize2
		}

		if t == s.Cfg.NCalc-2 {
			wNow, _ := s.wpotential(p)
			if collecting || wNow > 0.99 {
				lowField = true
				broke = true
				tailStart = t + 1
				break
			}
		}

		next := Vec3{X: p.X + v.X*s.Cfg.DtCalc, Y: p.Y + v.Y*s.Cfg.DtCalc, Z: p.Z + v.Z*s.Cfg.DtCalc}
		w, werr := s.wpotential(next)
		if werr != nil {
			broke = true
			tailStart = t + 1
			lastVel = v
			p = next
			break
		}
		signal[t] += q * (w - wPrev)

		if w >= 0.999 && (w-wPrev) < 2e-4 {
			lowField = true
			broke = true
			tailStart = t + 1
			break
		}

		wPrev = w
		p = next
		lastVel = v
	}

	if broke && !lowField && tailStart > 0 {
		s.tailExtrapolate(signal, trace, p, lastVel, wPrev, tailStart, q)
	}

	if !broke && collecting {
		return signal, &TruncatedError{}
	}
	return signal, nil
}

// tailExtrapolate continues a carrier that left the field grid in a
// straight line along its last known velocity, smearing the remaining
// weighting-potential change linearly toward the nearer electrode
// value until the point leaves the crystal or the step budget ends.
func (s *Setup) tailExtrapolate(signal []float64, trace []Vec3, p, lastVel Vec3, wLast float64, startT int, q float64) {
	target := 0.0
	if wLast > 0.3 {
		target = 1.0
	}
	remaining := s.Cfg.NCalc - startT
	if remaining <= 0 {
		return
	}
	dw := (target - wLast) / float64(remaining)

	cur := p
	for i := 0; i < remaining; i++ {
		t := startT + i
		if t >= s.Cfg.NCalc {
			break
		}
		if !s.Geom.InsideCartesian(cur.X, cur.Y, cur.Z) {
			break
		}
		trace[t] = cur
		signal[t] += q * dw
		cur = Vec3{X: cur.X + lastVel.X*s.Cfg.DtCalc, Y: cur.Y + lastVel.Y*s.Cfg.DtCalc, Z: cur.Z + lastVel.Z*s.Cfg.DtCalc}
	}
}
