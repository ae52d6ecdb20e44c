// Package veltab loads the tabulated |v|(|E|) drift-velocity curves
// along the <100>, <110>, <111> crystal axes for electrons and holes,
// derives the anisotropy coefficients once at load time, applies the
// Omar-Reggiani temperature correction, and answers per-step drift
// velocity queries for the signal generator.
package veltab

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"hpgefield/internal/consts"
)

// Vec3 is a plain cartesian vector, reused for field and velocity values.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Norm() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// MalformedTableError reports a structurally invalid velocity table file.
type MalformedTableError struct {
	Reason string
}

func (e *MalformedTableError) Error() string {
	return fmt.Sprintf("malformed velocity table: %s", e.Reason)
}

// ErrOutOfField reports a query magnitude beyond the table's range.
var ErrOutOfField = fmt.Errorf("veltab: field magnitude out of table range")

// ErrOutOfTemperatureRange reports Correct(T) called outside [77,110] K.
var ErrOutOfTemperatureRange = fmt.Errorf("veltab: temperature out of [77,110] K range")

// coeffs holds one carrier's anisotropy coefficients at a table row,
// plus the slope to the next row's coefficients so a query only needs
// one multiply-add per axis to interpolate within the bracket.
type coeffs struct {
	A, B, C    float64
	AP, BP, CP float64
}

// row is one line of the velocity table: field magnitude plus the six
// raw axis velocities, and the derived per-carrier coefficients.
type row struct {
	E                                        float64
	VE100, VE110, VE111                      float64
	VH100, VH110, VH111                      float64
	elec, hole                               coeffs
}

// carrierParams are the four floats on a table's summary line: the
// mobility at T=1K, the temperature power-law exponent, the
// saturation velocity, and the Omar-Reggiani shape exponent (named
// theta in the file, beta in the formula).
type carrierParams struct {
	Mu0     float64
	P       float64
	Vsat    float64
	Beta    float64
}

// Table is the loaded, prepared velocity table.
type Table struct {
	rows      []row
	elecParam carrierParams
	holeParam carrierParams
	corrected bool
}

// Load reads a whitespace-separated velocity table file: rows of
// seven floats ascending in E, anchored at E=0 with v=0, followed by
// an "e" and an "h" summary line of four floats each.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("veltab: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the same format as Load from an already-open reader.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{}
	scanner := bufio.NewScanner(r)

	var sawE, sawH bool
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		switch strings.ToLower(fields[0]) {
		case "e":
			p, err := parseSummary(fields)
			if err != nil {
				return nil, err
			}
			t.elecParam = p
			sawE = true
			continue
		case "h":
			p, err := parseSummary(fields)
			if err != nil {
				return nil, err
			}
			t.holeParam = p
			sawH = true
			continue
		}

		if len(fields) < 7 {
			return nil, &MalformedTableError{Reason: fmt.Sprintf("row %q: need 7 columns", line)}
		}
		vals := make([]float64, 7)
		for i, f := range fields[:7] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &MalformedTableError{Reason: fmt.Sprintf("row %q: %v", line, err)}
			}
			vals[i] = v
		}

		if len(t.rows) > 0 {
			last := t.rows[len(t.rows)-1].E
			if vals[0] <= last {
				return nil, &MalformedTableError{Reason: fmt.Sprintf("E column not strictly ascending at %g (prev %g)", vals[0], last)}
			}
		}

		t.rows = append(t.rows, row{
			E:     vals[0],
			VE100: vals[1], VE110: vals[2], VE111: vals[3],
			VH100: vals[4], VH110: vals[5], VH111: vals[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("veltab: scan: %w", err)
	}

	if len(t.rows) == 0 || t.rows[0].E != 0 {
		return nil, &MalformedTableError{Reason: "table must be anchored at E=0"}
	}
	if !sawE || !sawH {
		return nil, &MalformedTableError{Reason: "missing e/h summary line"}
	}

	t.prepare()
	return t, nil
}

func parseSummary(fields []string) (carrierParams, error) {
	if len(fields) < 5 {
		return carrierParams{}, &MalformedTableError{Reason: fmt.Sprintf("summary line %q needs 4 values", strings.Join(fields, " "))}
	}
	vals := make([]float64, 4)
	for i, f := range fields[1:5] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return carrierParams{}, &MalformedTableError{Reason: fmt.Sprintf("summary line: %v", err)}
		}
		vals[i] = v
	}
	return carrierParams{Mu0: vals[0], P: vals[1], Vsat: vals[2], Beta: vals[3]}, nil
}

// prepare computes the closed-form anisotropy coefficients (a,b,c) for
// every row from the three measured axis velocities, plus the slope
// to the next row for each coefficient.
func (t *Table) prepare() {
	for i := range t.rows {
		t.rows[i].elec = anisotropy(t.rows[i].VE100, t.rows[i].VE110, t.rows[i].VE111)
		t.rows[i].hole = anisotropy(t.rows[i].VH100, t.rows[i].VH110, t.rows[i].VH111)
	}
	for i := 0; i < len(t.rows)-1; i++ {
		dE := t.rows[i+1].E - t.rows[i].E
		t.rows[i].elec.AP = (t.rows[i+1].elec.A - t.rows[i].elec.A) / dE
		t.rows[i].elec.BP = (t.rows[i+1].elec.B - t.rows[i].elec.B) / dE
		t.rows[i].elec.CP = (t.rows[i+1].elec.C - t.rows[i].elec.C) / dE
		t.rows[i].hole.AP = (t.rows[i+1].hole.A - t.rows[i].hole.A) / dE
		t.rows[i].hole.BP = (t.rows[i+1].hole.B - t.rows[i].hole.B) / dE
		t.rows[i].hole.CP = (t.rows[i+1].hole.C - t.rows[i].hole.C) / dE
	}
}

// anisotropy inverts v100, v110, v111 for (a,b,c) under:
//
//	v110 = v100 - a - b - c                          (theta=90, phi=45)
//	v111 = v100 - (2/3)a - (4/9)(b+c)                 (theta=acos(1/sqrt3), phi=45)
//
// Both reference directions have phi=45, so b and c cannot be split
// from three measurements alone; the remainder is divided evenly
// between them (see DESIGN.md).
func anisotropy(v100, v110, v111 float64) coeffs {
	d1 := v100 - v110
	d2 := v100 - v111

	a := 4.5*d2 - 2*d1
	s := d1 - a
	return coeffs{A: a, B: s / 2, C: s / 2}
}

// Correct rescales every row's velocities by mu(E_row,T)/mu(E_row,77K)
// per carrier, using the Omar-Reggiani mobility model. It must be
// called after Load/Parse and before any Query, and recomputes the
// anisotropy coefficients from the rescaled axis velocities.
func (t *Table) Correct(T float64) error {
	if T < consts.TMin || T > consts.TMax {
		return ErrOutOfTemperatureRange
	}

	for i := range t.rows {
		e := t.rows[i].E
		fe := muRatio(t.elecParam, e, T)
		fh := muRatio(t.holeParam, e, T)

		t.rows[i].VE100 *= fe
		t.rows[i].VE110 *= fe
		t.rows[i].VE111 *= fe
		t.rows[i].VH100 *= fh
		t.rows[i].VH110 *= fh
		t.rows[i].VH111 *= fh
	}
	t.prepare()
	t.corrected = true
	return nil
}

// muRatio evaluates mu(e,T)/mu(e,77K) under Omar-Reggiani, returning 1
// at the E=0 anchor row (mu is unreported there; velocities stay 0).
func muRatio(p carrierParams, e, T float64) float64 {
	if e == 0 {
		return 1
	}
	return omarReggiani(p, e, T) / omarReggiani(p, e, consts.TRef)
}

func omarReggiani(p carrierParams, e, T float64) float64 {
	mu0 := p.Mu0 * math.Pow(T, p.P)
	beta := p.Beta
	if beta <= 0 {
		beta = 1
	}
	denom := math.Pow(1+math.Pow(mu0*e/p.Vsat, beta), 1/beta)
	return mu0 * e / denom
}

// Query returns the drift velocity vector for a carrier of charge q
// (positive for holes, negative for electrons) in field E. Holes
// drift along E, electrons against it.
func (t *Table) Query(q float64, e Vec3) (Vec3, error) {
	mag := e.Norm()
	if mag > t.rows[len(t.rows)-1].E {
		return Vec3{}, ErrOutOfField
	}

	theta := math.Atan2(math.Hypot(e.X, e.Y), e.Z)
	phi := math.Atan2(e.Y, e.X)

	i := t.bracket(mag)
	v100, c := t.interpolate(i, mag, q)

	s2t := math.Sin(theta) * math.Sin(theta)
	s4t := s2t * s2t
	s22p := math.Sin(2*phi) * math.Sin(2*phi)

	vmag := v100 - c.A*s2t - c.B*s4t - c.C*s22p*s4t

	if mag == 0 {
		return Vec3{}, nil
	}
	ux, uy, uz := e.X/mag, e.Y/mag, e.Z/mag
	sign := 1.0
	if q < 0 {
		sign = -1.0
	}
	return Vec3{X: sign * vmag * ux, Y: sign * vmag * uy, Z: sign * vmag * uz}, nil
}

// bracket returns the index i such that rows[i].E <= mag <= rows[i+1].E,
// or 0 if mag is below the first populated row (interpolate from the
// E=0 anchor).
func (t *Table) bracket(mag float64) int {
	lo, hi := 0, len(t.rows)-1
	for lo < hi-1 {
		mid := (lo + hi) / 2
		if t.rows[mid].E <= mag {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

func (t *Table) interpolate(i int, mag, q float64) (float64, coeffs) {
	r0, r1 := t.rows[i], t.rows[i+1]
	dE := mag - r0.E
	span := r1.E - r0.E

	var v0, v1 float64
	var c0 coeffs
	if q > 0 {
		v0, v1, c0 = r0.VH100, r1.VH100, r0.hole
	} else {
		v0, v1, c0 = r0.VE100, r1.VE100, r0.elec
	}

	var slope float64
	if span > 0 {
		slope = (v1 - v0) / span
	}
	v100 := v0 + dE*slope

	c := coeffs{
		A: c0.A + dE*c0.AP,
		B: c0.B + dE*c0.BP,
		C: c0.C + dE*c0.CP,
	}
	return v100, c
}
