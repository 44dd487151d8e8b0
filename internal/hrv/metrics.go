package hrv

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Intervals returns consecutive differences of the beat timestamps
func Intervals(timestamps []int64) []int64 {
	if len(timestamps) < 2 {
		return nil
	}

	intervals := make([]int64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals = append(intervals, timestamps[i]-timestamps[i-1])
	}
	return intervals
}

// FilterPlausible keeps intervals within [minMs, maxMs]
func FilterPlausible(intervals []int64, minMs, maxMs int64) []int64 {
	plausible := make([]int64, 0, len(intervals))
	for _, v := range intervals {
		if v >= minMs && v <= maxMs {
			plausible = append(plausible, v)
		}
	}
	return plausible
}

// CorrectArtifacts keeps the first interval and then every interval that
// deviates by at most tolerance from the mean of the last window accepted
// intervals. Rejected intervals never enter the rolling window.
func CorrectArtifacts(intervals []int64, window int, tolerance float64) []int64 {
	if len(intervals) == 0 {
		return nil
	}

	corrected := make([]int64, 0, len(intervals))
	corrected = append(corrected, intervals[0])

	for _, v := range intervals[1:] {
		recent := corrected[max(0, len(corrected)-window):]
		avg := stat.Mean(toFloats(recent), nil)
		if avg == 0 {
			corrected = append(corrected, v)
			continue
		}

		if math.Abs(float64(v)-avg)/avg <= tolerance {
			corrected = append(corrected, v)
		}
	}
	return corrected
}

// CalculateBpm returns round(60000 / mean interval), or 0 for no intervals
func CalculateBpm(intervals []int64) int {
	if len(intervals) == 0 {
		return 0
	}

	avg := stat.Mean(toFloats(intervals), nil)
	if avg <= 0 {
		return 0
	}
	return int(math.Round(60000 / avg))
}

// CalculateRmssd returns the root mean square of successive differences. It
// reports false for fewer than two intervals or a non-finite result.
func CalculateRmssd(intervals []int64) (float64, bool) {
	if len(intervals) < 2 {
		return 0, false
	}

	squares := make([]float64, 0, len(intervals)-1)
	for i := 1; i < len(intervals); i++ {
		d := float64(intervals[i] - intervals[i-1])
		squares = append(squares, d*d)
	}

	rmssd := math.Sqrt(stat.Mean(squares, nil))
	if !isFinite(rmssd) {
		return 0, false
	}
	return rmssd, true
}

// CalculateStressIndex returns the Kubios-style stress index, the square root
// of Baevsky's AMo / (2 Mo MxDMn). Intervals are binned down to binMs; the
// modal bin is the most populated one, the smallest bin winning ties.
func CalculateStressIndex(intervals []int64, binMs int64) (float64, bool) {
	if len(intervals) < 2 || binMs <= 0 {
		return 0, false
	}

	counts := make(map[int64]int)
	for _, v := range intervals {
		counts[(v/binMs)*binMs]++
	}

	bins := make([]int64, 0, len(counts))
	for bin := range counts {
		bins = append(bins, bin)
	}
	slices.Sort(bins)

	modeBin, modeCount := bins[0], counts[bins[0]]
	for _, bin := range bins[1:] {
		if counts[bin] > modeCount {
			modeBin, modeCount = bin, counts[bin]
		}
	}

	values := toFloats(intervals)
	mo := float64(modeBin) / 1000
	aMo := float64(modeCount) / float64(len(intervals)) * 100
	mxDMn := (floats.Max(values) - floats.Min(values)) / 1000
	if mo == 0 || mxDMn == 0 {
		return 0, false
	}

	si := math.Sqrt(aMo / (2 * mo * mxDMn))
	if !isFinite(si) {
		return 0, false
	}
	return si, true
}

func toFloats(values []int64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
