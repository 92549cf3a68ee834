package radio

import (
	"io"
	"math"
	"math/cmplx"
	"sort"

	"github.com/runningwild/go-fftw/fftw32"
)

// SpectralPower accumulates per-bin power over a number of FFTs.
type SpectralPower struct {
	avg     []float64
	med     []float64
	fftBins *fftw32.Array
	ffts    int
}

func NewSpectralPower(bins, ffts int) *SpectralPower {
	return &SpectralPower{
		fftBins: fftw32.NewArray(bins),
		ffts:    ffts,
	}
}

func (sp *SpectralPower) Bins() int { return len(sp.fftBins.Elems) }

func (sp *SpectralPower) Average() []float64 { return sp.avg }

// NoiseFloor is the median over bins of each bin's median power, in dB.
func (sp *SpectralPower) NoiseFloor() float64 {
	med := make([]float64, len(sp.med))
	copy(med, sp.med)
	sort.Float64s(med)
	return med[len(med)/2]
}

func (sp *SpectralPower) Spread() float64 {
	med := make([]float64, len(sp.avg))
	copy(med, sp.avg)
	sort.Float64s(med)
	return med[len(med)/2]
}

func (sp *SpectralPower) Stddev() float64 {
	spr, sdev := sp.Spread(), 0.0
	for _, v := range sp.avg {
		sdev += (v - spr) * (v - spr)
	}
	sdev /= float64(len(sp.avg) - 1)
	return math.Sqrt(sdev)
}

// NoiseMagnitude converts the noise floor to a per-sample magnitude on the
// same scale as the demodulator's noise threshold.
func (sp *SpectralPower) NoiseMagnitude() float64 {
	return math.Pow(10, sp.NoiseFloor()/20) / math.Sqrt(float64(sp.Bins()))
}

// Measure consumes ffts windows of Bins() samples from ch. Windows of any
// other length are skipped.
func (sp *SpectralPower) Measure(ch <-chan []complex64) error {
	bins := sp.Bins()
	sp.avg = make([]float64, bins)
	sp.med = make([]float64, bins)
	meds := make([][]float64, bins)
	medSamples := 10
	if medSamples > sp.ffts {
		medSamples = sp.ffts
	}
	for i := range meds {
		meds[i] = make([]float64, medSamples)
	}
	arr := &fftw32.Array{}
	for n := 0; n < sp.ffts; {
		samps, ok := <-ch
		if !ok {
			return io.EOF
		}
		if len(samps) != bins {
			continue
		}
		arr.Elems = samps
		out := fftw32.FFT(arr)
		for i, v := range out.Elems {
			idx := i + bins/2
			if i >= bins/2 {
				idx = i - bins/2
			}
			db := 20 * math.Log10(cmplx.Abs(complex128(v)))
			sp.avg[idx] += db / float64(sp.ffts)
			meds[idx][((len(meds[idx])-1)*n)/sp.ffts] = db
		}
		n++
	}
	for i := range sp.med {
		sort.Float64s(meds[i])
		sp.med[i] = meds[i][len(meds[i])/2]
	}
	return nil
}
