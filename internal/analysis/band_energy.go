package analysis

import "math"

// FrequencyBand defines the name and frequency range [LowHz, HighHz) of an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the spectrum the way mixing engineers usually talk about it.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "low_mid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "high_mid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandEnergy maps magnitude bins onto bands and reports the share of frame
// energy that falls in each band.
type BandEnergy struct {
	bands   []FrequencyBand
	binBand []int // band index per bin, -1 when outside every band
}

// NewBandEnergy precomputes the bin-to-band mapping for sp.
func NewBandEnergy(sp SpectrumProvider, bands []FrequencyBand) *BandEnergy {
	if len(bands) == 0 {
		bands = DefaultBands
	}
	binBand := make([]int, sp.Bins())
	for i := range binBand {
		binBand[i] = -1
		freq := sp.FrequencyForBin(i)
		for b, band := range bands {
			if freq >= band.LowHz && freq < band.HighHz {
				binBand[i] = b
				break
			}
		}
	}
	return &BandEnergy{bands: bands, binBand: binBand}
}

// Bands returns the configured bands.
func (b *BandEnergy) Bands() []FrequencyBand { return b.bands }

// Fractions writes each band's share of the in-band energy (magnitude
// squared) of mags into dst. A silent frame yields all zeros.
func (b *BandEnergy) Fractions(dst, mags []float64) []float64 {
	if cap(dst) < len(b.bands) {
		dst = make([]float64, len(b.bands))
	}
	dst = dst[:len(b.bands)]
	clear(dst)

	var total float64
	for i, m := range mags {
		if i >= len(b.binBand) || b.binBand[i] < 0 {
			continue
		}
		e := m * m
		dst[b.binBand[i]] += e
		total += e
	}
	if total == 0 {
		return dst
	}
	for i := range dst {
		dst[i] /= total
	}
	return dst
}
