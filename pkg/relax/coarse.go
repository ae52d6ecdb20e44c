package relax

import (
	"fmt"

	"github.com/edp1096/sparse"

	"hpgefield/internal/consts"
)

// coarseMatrix wraps github.com/edp1096/sparse for the grid stencil's
// linear system: one unknown per non-FIXED pixel, 1-based indexing
// into the library's element/RHS arrays.
type coarseMatrix struct {
	size   int
	matrix *sparse.Matrix
	rhs    []float64
	config *sparse.Configuration
}

func newCoarseMatrix(size int) *coarseMatrix {
	config := &sparse.Configuration{
		Real:           true,
		Expandable:     true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
	}
	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil
	}
	return &coarseMatrix{
		size:   size,
		matrix: mat,
		rhs:    make([]float64, size+1),
		config: config,
	}
}

func (m *coarseMatrix) add(i, j int, value float64) {
	if i <= 0 || j <= 0 {
		return
	}
	m.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (m *coarseMatrix) addRHS(i int, value float64) {
	if i <= 0 {
		return
	}
	m.rhs[i] += value
}

func (m *coarseMatrix) solve() ([]float64, error) {
	if err := m.matrix.Factor(); err != nil {
		return nil, fmt.Errorf("relax: coarse matrix factorization failed: %v", err)
	}
	sol, err := m.matrix.Solve(m.rhs)
	if err != nil {
		return nil, fmt.Errorf("relax: coarse matrix solve failed: %v", err)
	}
	return sol, nil
}

// assembleCoarseDirectSolve replaces the linear-ramp initial guess on
// the coarsest multi-grid level with a direct solve of the stencil's
// linear part (the space-charge term enters as the fixed source
// N0+M*z, without the clamp), giving the first Jacobi
// pass a far better starting point than the bare ramp. Every BULK,
// EDGE_R, and EDGE_Z pixel gets one unknown; FIXED pixels contribute
// to neighbors' RHS only.
//
// One equation per free unknown is stamped directly into the sparse
// matrix, then factored and solved once in a single
// sparse.Create/Factor/Solve/Destroy cycle.
func assembleCoarseDirectSolve(l *Level, imp Impurity) {
	index := make([][]int, l.Nz+1)
	n := 0
	for iz := 0; iz <= l.Nz; iz++ {
		index[iz] = make([]int, l.Nr+1)
		for ir := 0; ir <= l.Nr; ir++ {
			if l.tag[iz][ir] == Fixed {
				index[iz][ir] = -1
				continue
			}
			n++
			index[iz][ir] = n
		}
	}
	if n == 0 {
		return
	}

	m := newCoarseMatrix(n)
	if m == nil {
		return
	}
	defer m.matrix.Destroy()

	kappa := consts.KappaBulk * 4 * l.H * l.H

	for iz := 0; iz <= l.Nz; iz++ {
		z := float64(iz) * l.H
		for ir := 0; ir <= l.Nr; ir++ {
			row := index[iz][ir]
			if row < 0 {
				continue
			}

			type face struct {
				jz, jr int
				w      float64
			}
			var faces []face
			r := float64(ir) * l.H
			eps := l.epsilonAt(iz, ir)

			stamp := func(jz, jr int, w float64) {
				if jz < 0 || jr < 0 || jz > l.Nz || jr > l.Nr {
					return
				}
				faces = append(faces, face{jz, jr, faceEpsilon(eps, l.epsilonAt(jz, jr)) * w})
			}

			if ir == 0 {
				stamp(iz, ir+1, 4)
			} else {
				stamp(iz, ir+1, 1+1/(2*r))
				stamp(iz, ir-1, 1-1/(2*r))
			}
			if iz == 0 {
				stamp(iz+1, ir, 2)
			} else {
				stamp(iz+1, ir, 1)
				stamp(iz-1, ir, 1)
			}

			var den float64
			for _, f := range faces {
				den += f.w
			}
			if den == 0 {
				m.add(row, row, 1)
				m.addRHS(row, 0)
				continue
			}

			m.add(row, row, den)
			for _, f := range faces {
				if col := index[f.jz][f.jr]; col > 0 {
					m.add(row, col, -f.w)
				} else {
					m.addRHS(row, f.w*l.fixedVal[f.jz][f.jr])
				}
			}

			charge := l.vfrac[iz][ir] * (imp.N0 + imp.M*z) * kappa
			m.addRHS(row, den*charge)
		}
	}

	sol, err := m.solve()
	if err != nil {
		return
	}

	for iz := 0; iz <= l.Nz; iz++ {
		for ir := 0; ir <= l.Nr; ir++ {
			if row := index[iz][ir]; row > 0 {
				l.v[iz][ir] = sol[row]
				l.vNew[iz][ir] = sol[row]
			}
		}
	}
}
