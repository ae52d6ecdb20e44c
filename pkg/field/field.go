// Package field holds the precomputed electric-field and
// weighting-potential grids written by the relaxation solver, and
// performs bilinear interpolation to arbitrary (r,z) points for the
// drift integrator.
package field

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrOutOfField is returned when a query point falls outside the
// loaded grid.
var ErrOutOfField = fmt.Errorf("field: point outside loaded grid")

// Vec2 is a planar (r,z) vector, used here for the E-field.
type Vec2 struct{ R, Z float64 }

// grid describes a regular (r,z) mesh of (Nr+1) x (Nz+1) points at
// spacing H; the tables in Store are addressed [iz][ir] over it.
type grid struct {
	H      float64
	Nr, Nz int
}

func (g grid) index(r, z float64) (ir0, iz0 int, fr, fz float64, ok bool) {
	if r < 0 || z < 0 {
		return 0, 0, 0, 0, false
	}
	rf := r / g.H
	zf := z / g.H
	if rf > float64(g.Nr) || zf > float64(g.Nz) {
		return 0, 0, 0, 0, false
	}
	ir0 = int(rf)
	iz0 = int(zf)
	// A point on the last grid line uses the cell below it.
	if ir0 == g.Nr {
		ir0--
	}
	if iz0 == g.Nz {
		iz0--
	}
	if ir0 < 0 || iz0 < 0 {
		return 0, 0, 0, 0, false
	}
	fr = rf - float64(ir0)
	fz = zf - float64(iz0)
	return ir0, iz0, fr, fz, true
}

// Store is the exclusive, heap-resident holder of the E-field and
// weighting-potential grids, owned for the program's lifetime once
// loaded.
type Store struct {
	g  grid
	er [][]float64 // [iz][ir] E_r, V/cm
	ez [][]float64 // [iz][ir] E_z, V/cm
	wp [][]float64 // [iz][ir] weighting potential, [0,1]
}

// LoadField reads the ASCII field table written by the relaxation
// solver (r z V |E| E_r E_z per row, blank line between r blocks,
// header starting with "##").
func LoadField(path string) (*Store, error) {
	rows, nr, nz, h, err := readTable(path, 6)
	if err != nil {
		return nil, err
	}
	s := &Store{g: grid{H: h, Nr: nr, Nz: nz}}
	s.er = make([][]float64, nz+1)
	s.ez = make([][]float64, nz+1)
	for iz := range s.er {
		s.er[iz] = make([]float64, nr+1)
		s.ez[iz] = make([]float64, nr+1)
	}
	for _, row := range rows {
		ir, iz := cellIndex(row[0], row[1], h)
		s.er[iz][ir] = row[4]
		s.ez[iz][ir] = row[5]
	}
	return s, nil
}

// LoadWeightingPotential reads the weighting-potential ASCII table (r
// z WP per row) into an existing Store, or a fresh one if s is nil.
func LoadWeightingPotential(path string, s *Store) (*Store, error) {
	rows, nr, nz, h, err := readTable(path, 3)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &Store{g: grid{H: h, Nr: nr, Nz: nz}}
	}
	s.wp = make([][]float64, nz+1)
	for iz := range s.wp {
		s.wp[iz] = make([]float64, nr+1)
	}
	for _, row := range rows {
		ir, iz := cellIndex(row[0], row[1], h)
		s.wp[iz][ir] = row[2]
	}
	return s, nil
}

func cellIndex(r, z, h float64) (ir, iz int) {
	return int(math.Round(r / h)), int(math.Round(z / h))
}

// readTable parses the outer-r/inner-z blank-line-separated ASCII
// grid format shared by the field and weighting-potential files, and
// infers the grid spacing and extents from the data.
func readTable(path string, cols int) (rows [][]float64, nr, nz int, h float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("field: open %s: %w", path, err)
	}
	defer f.Close()

	var rVals, zVals []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "##") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < cols {
			return nil, 0, 0, 0, fmt.Errorf("field: %s: short row %q", path, line)
		}
		vals := make([]float64, cols)
		for i := 0; i < cols; i++ {
			v, perr := strconv.ParseFloat(fields[i], 64)
			if perr != nil {
				return nil, 0, 0, 0, fmt.Errorf("field: %s: %w", path, perr)
			}
			vals[i] = v
		}
		rows = append(rows, vals)
		rVals = append(rVals, vals[0])
		zVals = append(zVals, vals[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("field: scan %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, 0, 0, 0, fmt.Errorf("field: %s: empty table", path)
	}

	h = inferSpacing(zVals)
	if h <= 0 {
		h = inferSpacing(rVals)
	}
	maxR, maxZ := 0.0, 0.0
	for _, r := range rVals {
		if r > maxR {
			maxR = r
		}
	}
	for _, z := range zVals {
		if z > maxZ {
			maxZ = z
		}
	}
	nr = int(math.Round(maxR / h))
	nz = int(math.Round(maxZ / h))
	return rows, nr, nz, h, nil
}

// inferSpacing returns the smallest strictly positive consecutive
// difference seen in vs, a robust stand-in for the nominal grid step.
func inferSpacing(vs []float64) float64 {
	best := math.MaxFloat64
	for i := 1; i < len(vs); i++ {
		d := math.Abs(vs[i] - vs[i-1])
		if d > 1e-12 && d < best {
			best = d
		}
	}
	if best == math.MaxFloat64 {
		return 0
	}
	return best
}

// EFieldAt returns the bilinearly interpolated (E_r, E_z) field at
// cartesian (x,y,z); cylindrical symmetry reduces it to r = hypot(x,y).
func (s *Store) EFieldAt(x, y, z float64) (Vec2, error) {
	r := math.Hypot(x, y)
	return s.efieldCyl(r, z)
}

func (s *Store) efieldCyl(r, z float64) (Vec2, error) {
	ir0, iz0, fr, fz, ok := s.g.index(r, z)
	if !ok {
		return Vec2{}, ErrOutOfField
	}
	er := bilinear(s.er, ir0, iz0, fr, fz)
	ez := bilinear(s.ez, ir0, iz0, fr, fz)
	return Vec2{R: er, Z: ez}, nil
}

// WPotentialAt returns the bilinearly interpolated weighting potential
// at cartesian (x,y,z).
func (s *Store) WPotentialAt(x, y, z float64) (float64, error) {
	r := math.Hypot(x, y)
	ir0, iz0, fr, fz, ok := s.g.index(r, z)
	if !ok {
		return 0, ErrOutOfField
	}
	return bilinear(s.wp, ir0, iz0, fr, fz), nil
}

func bilinear(v [][]float64, ir0, iz0 int, fr, fz float64) float64 {
	ir1, iz1 := ir0+1, iz0+1
	v00 := v[iz0][ir0]
	v01 := v[iz0][ir1]
	v10 := v[iz1][ir0]
	v11 := v[iz1][ir1]
	return v00*(1-fr)*(1-fz) + v01*fr*(1-fz) + v10*(1-fr)*fz + v11*fr*fz
}

// Spacing returns the grid step, in mm.
func (s *Store) Spacing() float64 { return s.g.H }
