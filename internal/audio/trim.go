package audio

import "math"

// TrimPolicy selects the part of a long signal that is worth classifying.
// Keep is the share of the original length retained and Margin the share
// skipped at each end before sampling. Patches of PatchSize samples are taken
// at evenly spaced offsets across the interior so the excerpt covers the whole
// piece rather than one passage; PatchSize 0 takes a single centred block.
type TrimPolicy struct {
	Keep      float64
	Margin    float64
	PatchSize int
}

// Apply returns a newly allocated excerpt of samples. Signals already no
// longer than the kept length are copied whole.
func (p TrimPolicy) Apply(samples []float64) []float64 {
	n := len(samples)
	keepLen := int(math.Ceil(float64(n) * p.Keep))
	if p.Keep <= 0 || p.Keep >= 1 || keepLen >= n {
		out := make([]float64, n)
		copy(out, samples)
		return out
	}

	margin := max(0, int(float64(n)*p.Margin))
	if 2*margin >= n {
		margin = 0
	}
	interior := samples[margin : n-margin]
	keepLen = min(keepLen, len(interior))
	out := make([]float64, 0, keepLen)

	if p.PatchSize <= 0 || p.PatchSize >= keepLen {
		start := (len(interior) - keepLen) / 2
		return append(out, interior[start:start+keepLen]...)
	}

	patches := (keepLen + p.PatchSize - 1) / p.PatchSize
	span := len(interior) - p.PatchSize
	for k := 0; k < patches && len(out) < keepLen; k++ {
		start := 0
		if patches > 1 {
			start = k * span / (patches - 1)
		}
		take := min(p.PatchSize, keepLen-len(out))
		out = append(out, interior[start:start+take]...)
	}
	return out
}
