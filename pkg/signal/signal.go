// Package signal combines the hole and electron drift contributions
// into one induced-charge waveform, then applies the charge-cloud
// Gaussian convolution, output-rate downsampling, and RC preamplifier
// integration described for the post-processing stage.
package signal

import (
	"math"

	"hpgefield/internal/consts"
	"hpgefield/pkg/drift"
)

// Config holds the post-processing parameters read from the
// configuration file.
type Config struct {
	NOut  int     // number of output samples (N_out)
	DtOut float64 // step_time_out, ns
	Tau   float64 // preamp_tau, ns
}

// Processor owns one event's signal scratch buffers (raw, tmp, sum),
// lazily allocated to the drift Setup's N_calc and reused across
// calls, per the per-Setup resource model.
type Processor struct {
	Drift *drift.Setup
	Cfg   Config

	raw, tmp, sum []float64
}

func NewProcessor(d *drift.Setup, cfg Config) *Processor {
	return &Processor{Drift: d, Cfg: cfg}
}

func (p *Processor) ensureScratch(n int) {
	if len(p.raw) == n {
		return
	}
	p.raw = make([]float64, n)
	p.tmp = make([]float64, n)
	p.sum = make([]float64, n)
}

// GetSignal drifts holes and electrons from start, sums their induced
// charge, and returns the fully processed N_out-length waveform. Only
// a hole-drift failure is fatal; an electron failure is absorbed.
func (p *Processor) GetSignal(start drift.Vec3) ([]float64, error) {
	nCalc := p.Drift.Cfg.NCalc
	p.ensureScratch(nCalc)

	holeSig, holeErr := p.Drift.MakeSignal(start, consts.CHARGE)
	if holeErr != nil {
		if _, truncated := holeErr.(*drift.TruncatedError); !truncated {
			return nil, holeErr
		}
	}

	elecSig, elecErr := p.Drift.MakeSignal(start, -consts.CHARGE)
	_ = elecErr // electron failure alone is survivable

	for i := range p.raw {
		var h, e float64
		if holeSig != nil {
			h = holeSig[i]
		}
		if elecSig != nil {
			e = elecSig[i]
		}
		p.raw[i] = h + e
	}

	// Integrate current increments to cumulative charge.
	var acc float64
	for i := range p.raw {
		acc += p.raw[i]
		p.raw[i] = acc / consts.CHARGE // normalize to a unit-charge waveform
	}

	sigma := p.sigma()
	if sigma > 1 {
		p.convolve(sigma)
	}

	out := make([]float64, p.Cfg.NOut)
	p.downsample(p.raw, out)
	rcIntegrate(out, out, p.Cfg.Tau, p.Cfg.DtOut)

	return out, holeErr
}

// sigma computes the effective Gaussian convolution width in samples,
// from the collecting carrier's diagnostics recorded by the most
// recent MakeSignal call.
func (p *Processor) sigma() float64 {
	dt := p.Drift.Cfg.DtCalc
	if p.Drift.Cfg.UseDiffusion && p.Drift.LastFinalChargeSize2 > 0 && p.Drift.LastFinalSpeed > 0 {
		return math.Sqrt(p.Drift.LastFinalChargeSize2) / (dt * p.Drift.LastFinalSpeed)
	}
	if p.Drift.LastInitialVel > 0 {
		return p.Drift.Cfg.ChargeCloudSize / (dt * p.Drift.LastInitialVel)
	}
	return 0
}

// convolve applies the symmetric-shift Gaussian smoothing in place:
// shifts k = L, 2L, 3L, ... up to 2*sigma each add a weighted
// contribution to both the weight accumulator (sum) and the weighted
// signal accumulator (tmp); the result at each position is tmp/sum.
func (p *Processor) convolve(sigma float64) {
	fwhm := sigma / 2.355
	l := int(math.Floor(sigma / 2.355 / 5))
	if l < 1 {
		l = 1
	}

	n := len(p.raw)
	for i := range p.sum {
		p.sum[i] = 1
		p.tmp[i] = p.raw[i]
	}

	for k := l; float64(k) <= 2*sigma; k += l {
		weight := math.Exp(-(float64(k) / fwhm) * (float64(k) / fwhm))
		for j := 0; j < n; j++ {
			if j+k < n {
				p.tmp[j] += weight * p.raw[j+k]
				p.sum[j] += weight
			}
			if j-k >= 0 {
				p.tmp[j] += weight * p.raw[j-k]
				p.sum[j] += weight
			}
		}
	}

	for j := 0; j < n; j++ {
		p.raw[j] = p.tmp[j] / p.sum[j]
	}
}

// downsample averages contiguous runs of c = len(in)/len(out) samples.
func (p *Processor) downsample(in, out []float64) {
	if len(out) == 0 {
		return
	}
	c := len(in) / len(out)
	if c < 1 {
		c = 1
	}
	for j := range out {
		lo := j * c
		hi := lo + c
		if hi > len(in) {
			hi = len(in)
		}
		if lo >= hi {
			out[j] = 0
			continue
		}
		var sum float64
		for i := lo; i < hi; i++ {
			sum += in[i]
		}
		out[j] = sum / float64(hi-lo)
	}
}

// RCIntegrate applies the single-pole RC preamp response with time
// constant tau (in the same units as dt): y[j] = y[j-1] + (x[j-1] -
// y[j-1])*(1-exp(-dt/tau)), with y[0] = 0. For tau < 0.1*dt it instead
// shifts the signal right by one sample. Tolerates in == out.
func RCIntegrate(in, out []float64, tau, dt float64) {
	rcIntegrate(in, out, tau, dt)
}

func rcIntegrate(in, out []float64, tau, dt float64) {
	n := len(in)
	if n == 0 {
		return
	}
	if tau < 0.1*dt {
		prev := 0.0
		for j := 0; j < n; j++ {
			cur := in[j]
			out[j] = prev
			prev = cur
		}
		return
	}

	alpha := 1 - math.Exp(-dt/tau)
	// Capture each input sample before writing its output slot, so the
	// recurrence is safe whether in and out are the same slice.
	prevIn := in[0]
	prevOut := 0.0
	out[0] = 0
	for j := 1; j < n; j++ {
		y := prevOut + (prevIn-prevOut)*alpha
		nextIn := in[j]
		out[j] = y
		prevOut = y
		prevIn = nextIn
	}
}
