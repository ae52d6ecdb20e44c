package relax

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
)

// WriteField writes the six-column field table (r, z, V, |E|, E_r,
// E_z) in the blank-line-separated, "##"-headed ASCII format the
// pkg/field reader expects, one block per r value.
func WriteField(path string, r *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("relax: create field file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	fmt.Fprintln(w, "## r(mm) z(mm) V(V) |E|(V/cm) E_r(V/cm) E_z(V/cm)")
	// V/mm -> V/cm is a factor of 10.
	const perMm2PerCm = 10.0

	for ir := 0; ir <= r.Nr; ir++ {
		rr := float64(ir) * r.H
		for iz := 0; iz <= r.Nz; iz++ {
			zz := float64(iz) * r.H

			var er, ez float64
			switch {
			case ir == 0:
				er = -(r.V[iz][ir+1] - r.V[iz][ir]) / r.H * perMm2PerCm
			case ir == r.Nr:
				er = -(r.V[iz][ir] - r.V[iz][ir-1]) / r.H * perMm2PerCm
			default:
				er = -(r.V[iz][ir+1] - r.V[iz][ir-1]) / (2 * r.H) * perMm2PerCm
			}
			switch {
			case iz == 0:
				ez = -(r.V[iz+1][ir] - r.V[iz][ir]) / r.H * perMm2PerCm
			case iz == r.Nz:
				ez = -(r.V[iz][ir] - r.V[iz-1][ir]) / r.H * perMm2PerCm
			default:
				ez = -(r.V[iz+1][ir] - r.V[iz-1][ir]) / (2 * r.H) * perMm2PerCm
			}

			mag := math.Hypot(er, ez)
			fmt.Fprintf(w, "%g %g %g %g %g %g\n", rr, zz, r.V[iz][ir], mag, er, ez)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteWeightingPotential writes the three-column (r, z, WP) table.
func WriteWeightingPotential(path string, r *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("relax: create weighting potential file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	fmt.Fprintln(w, "## r(mm) z(mm) WP")
	for ir := 0; ir <= r.Nr; ir++ {
		rr := float64(ir) * r.H
		for iz := 0; iz <= r.Nz; iz++ {
			zz := float64(iz) * r.H
			fmt.Fprintf(w, "%g %g %g\n", rr, zz, r.WP[iz][ir])
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteUndepleted writes the undepleted/pinch-off map: one character
// per pixel, '*' pinched, 'B' the pixel at (bubbleIz, bubbleIr) when
// a bubble was found, ' ' for every other pixel. Fixed and bulk
// pixels are not told apart; no '.' is written.
func WriteUndepleted(path string, r *Result, bubbleIz, bubbleIr int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("relax: create undepleted map: %w", err)
	}
	defer f.Close()
	return writeUndepletedTo(f, r, bubbleIz, bubbleIr)
}

func writeUndepletedTo(w io.Writer, r *Result, bubbleIz, bubbleIr int) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for iz := r.Nz; iz >= 0; iz-- {
		for ir := 0; ir <= r.Nr; ir++ {
			ch := byte(' ')
			switch {
			case r.Bubble && iz == bubbleIz && ir == bubbleIr:
				ch = 'B'
			case r.Pinched[iz][ir]:
				ch = '*'
			}
			bw.WriteByte(ch)
		}
		bw.WriteByte('\n')
	}
	return nil
}
