package xray

import "math"

const (
	histBins     = 256
	histLow      = 20.0
	histHigh     = 235.0
	smoothWindow = 5
	peakStdScale = 0.5
)

// binEdges matches numpy.linspace(histLow, histHigh, histBins+1).
var binEdges = func() [histBins + 1]float64 {
	var edges [histBins + 1]float64
	step := (histHigh - histLow) / histBins
	for i := range edges {
		edges[i] = float64(i)*step + histLow
	}
	edges[histBins] = histHigh
	return edges
}()

// histogram counts values into histBins equal-width bins over [histLow, histHigh].
// Out-of-range values are dropped and the last bin includes its right edge.
// Bin assignment follows numpy.histogram, including its correction against the
// computed edges for values that land on a boundary.
func histogram(values []float64) []int {
	counts := make([]int, histBins)
	norm := histBins / (histHigh - histLow)
	for _, v := range values {
		if !(v >= histLow && v <= histHigh) {
			continue
		}
		idx := int((v - histLow) * norm)
		if idx == histBins {
			idx--
		}
		if v < binEdges[idx] {
			idx--
		} else if idx != histBins-1 && v >= binEdges[idx+1] {
			idx++
		}
		counts[idx]++
	}
	return counts
}

func maxCount(counts []int) int {
	m := 0
	for _, c := range counts {
		if c > m {
			m = c
		}
	}
	return m
}

// movingAverage is a "valid" mode convolution with a flat window: the result has
// len(counts)-window+1 entries.
func movingAverage(counts []int, window int) []float64 {
	if len(counts) < window {
		return nil
	}
	out := make([]float64, len(counts)-window+1)
	for i := range out {
		var sum float64
		for _, c := range counts[i : i+window] {
			sum += float64(c)
		}
		out[i] = sum / float64(window)
	}
	return out
}

// peaks counts the smoothed bins above mean + 0.5*std and returns the index
// distance between the first and last of them. A flat histogram has no peaks.
func peaks(smoothed []float64) (count, spread int) {
	mean, std := meanStd(smoothed)
	threshold := mean + peakStdScale*std

	first, last := -1, -1
	for i, v := range smoothed {
		if v > threshold {
			if first < 0 {
				first = i
			}
			last = i
			count++
		}
	}
	if count > 1 {
		spread = last - first
	}
	return count, spread
}

// symmetry correlates the first half of the smoothed histogram with the reversed
// second half. It returns NaN when either half is constant.
func symmetry(smoothed []float64) float64 {
	mid := len(smoothed) / 2
	if mid == 0 {
		return math.NaN()
	}
	first := smoothed[:mid]
	second := smoothed[mid:]

	reversed := make([]float64, len(second))
	for i, v := range second {
		reversed[len(second)-1-i] = v
	}
	return pearson(first, reversed[:len(first)])
}

func pearson(a, b []float64) float64 {
	meanA, _ := meanStd(a)
	meanB, _ := meanStd(b)

	var cov, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	r := cov / math.Sqrt(varA*varB)
	return math.Max(-1, math.Min(1, r))
}
