package adc

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NoiseStats summarises a run of raw codes. StdDev is the figure to compare
// against the stability threshold times the calibration factor.
type NoiseStats struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// PeakToPeak returns Max - Min.
func (s NoiseStats) PeakToPeak() float64 {
	return s.Max - s.Min
}

// Collect reads n unsmoothed raw conversions.
func (d *Driver) Collect(n int) []float64 {
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, float64(d.proto.Acquire()))
	}
	return out
}

// Noise computes NoiseStats over samples. An empty slice yields the zero value.
func Noise(samples []float64) NoiseStats {
	if len(samples) == 0 {
		return NoiseStats{}
	}
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) == 1 {
		std = 0
	}
	return NoiseStats{
		N:      len(samples),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(samples),
		Max:    floats.Max(samples),
	}
}
