package audio

import "math"

// TargetRate is the sample rate the streaming transcription service expects.
const TargetRate = 16000

// Resampler converts blocks from a source rate to a target rate using linear
// interpolation. When the rates match it passes blocks through unchanged.
type Resampler struct {
	srcRate int
	dstRate int
}

func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{srcRate: srcRate, dstRate: dstRate}
}

// Resample returns round(len(block)*dst/src) samples. For output index i the
// source position is i*src/dst; the value is interpolated between the two
// neighboring source samples.
func (r *Resampler) Resample(block []float32) []float32 {
	if r.srcRate == r.dstRate || len(block) == 0 {
		return block
	}
	outLen := int(math.Round(float64(len(block)) * float64(r.dstRate) / float64(r.srcRate)))
	if outLen == 0 {
		return nil
	}
	out := make([]float32, outLen)
	ratio := float64(r.srcRate) / float64(r.dstRate)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(block)-1 {
			out[i] = block[len(block)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = block[j] + (block[j+1]-block[j])*frac
	}
	return out
}
