package voc

import "math"

// Baseline is a simple relative index: it tracks a slow exponential moving
// average of the raw signal and maps the deviation from it through tanh.
// It is not the Sensirion VOC index algorithm, but gives a usable relative
// indication of indoor air quality.
type Baseline struct {
	alpha    float64
	scale    float64
	baseline float64
	seeded   bool
}

// Defaults for NewBaseline.
const (
	DefaultAlpha = 0.001
	DefaultScale = 300.0
)

// NewBaseline returns an algorithm with the given adaptation rate (smaller
// is slower) and sensitivity.
func NewBaseline(alpha, scale float64) *Baseline {
	return &Baseline{alpha: alpha, scale: scale}
}

// Process feeds one raw sample. The first call seeds the baseline and
// returns 100. Baseline is not safe for concurrent use.
func (b *Baseline) Process(sraw uint16) int {
	raw := float64(sraw)
	if !b.seeded {
		b.baseline = raw
		b.seeded = true
		return 100
	}

	b.baseline = (1-b.alpha)*b.baseline + b.alpha*raw

	var rel float64
	if b.baseline > 0 {
		rel = (raw - b.baseline) / b.baseline
	}
	idx := 100 + 200*math.Tanh(rel*b.scale/100)
	return int(min(max(math.RoundToEven(idx), 0), 500))
}

// Value returns the current baseline and whether it has been seeded.
func (b *Baseline) Value() (float64, bool) {
	return b.baseline, b.seeded
}
