// Package xray decides whether a normalized image plausibly is a radiograph.
//
// The decision is a conjunction of fixed thresholds over pixel statistics. The
// thresholds were tuned against exactly these feature definitions (population
// standard deviations, flattened cyclic shifts, numpy-style histogram binning),
// so changing how a feature is computed moves the accept/reject boundary.
package xray

import (
	"math"

	"github.com/akshitverma317/diagnoai/internal/imaging"
)

const (
	maxColorVariation = 25.0
	maxEdgeIntensity  = 30.0

	minMeanIntensity = 20.0
	maxMeanIntensity = 235.0
	minStdIntensity  = 15.0
	maxStdIntensity  = 80.0
	maxLocalContrast = 25.0
	minPeakCount     = 2
	minPeakSpread    = 30
	minSymmetry      = -0.3
	maxDominantShare = 0.3
)

// Reason names the first check an image failed.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonEmpty             Reason = "empty_image"
	ReasonColorVariation    Reason = "color_variation"
	ReasonEdgeIntensity     Reason = "edge_intensity"
	ReasonMeanIntensity     Reason = "mean_intensity"
	ReasonStdIntensity      Reason = "std_intensity"
	ReasonLocalContrast     Reason = "local_contrast"
	ReasonPeakCount         Reason = "peak_count"
	ReasonPeakSpread        Reason = "peak_spread"
	ReasonSymmetry          Reason = "symmetry"
	ReasonDominantIntensity Reason = "dominant_intensity"
)

// Features are the statistics the verdict is based on. Fields after ColorVariation
// are zero when the image was rejected on color variation.
type Features struct {
	ColorVariation    float64 `json:"colorVariation"`
	MeanIntensity     float64 `json:"meanIntensity"`
	StdIntensity      float64 `json:"stdIntensity"`
	LocalContrastMean float64 `json:"localContrastMean"`
	PeakCount         int     `json:"peakCount"`
	PeakSpread        int     `json:"peakSpread"`
	// SymmetryScore is NaN when either histogram half has zero variance.
	SymmetryScore float64 `json:"-"`
	MaxBinCount   int     `json:"maxBinCount"`
	PixelCount    int     `json:"pixelCount"`
	EdgeIntensity float64 `json:"edgeIntensity"`
}

type Verdict struct {
	Plausible bool     `json:"plausible"`
	Reason    Reason   `json:"reason,omitempty"`
	Features  Features `json:"features"`
}

// IsPlausibleXray reports whether img passes every authenticity check.
func IsPlausibleXray(img imaging.PixelImage) bool {
	return Evaluate(img).Plausible
}

// Evaluate computes the features of img and the resulting verdict.
// It has no side effects and returns identical results for identical input.
func Evaluate(img imaging.PixelImage) Verdict {
	if img.Empty() {
		return Verdict{Reason: ReasonEmpty}
	}

	var f Features
	if img.Channels() > 1 {
		f.ColorVariation = colorVariation(img)
		if f.ColorVariation > maxColorVariation {
			return Verdict{Reason: ReasonColorVariation, Features: f}
		}
	}

	g := grayscale(img)
	f.PixelCount = len(g.pix)
	f.MeanIntensity, f.StdIntensity = meanStd(g.pix)
	f.LocalContrastMean = localContrastMean(g)

	hist := histogram(g.pix)
	f.MaxBinCount = maxCount(hist)
	smoothed := movingAverage(hist, smoothWindow)
	f.PeakCount, f.PeakSpread = peaks(smoothed)
	f.SymmetryScore = symmetry(smoothed)

	f.EdgeIntensity = edgeIntensity(g)
	if f.EdgeIntensity > maxEdgeIntensity {
		return Verdict{Reason: ReasonEdgeIntensity, Features: f}
	}

	if reason := firstFailure(f); reason != ReasonNone {
		return Verdict{Reason: reason, Features: f}
	}
	return Verdict{Plausible: true, Features: f}
}

func firstFailure(f Features) Reason {
	switch {
	case !(f.MeanIntensity > minMeanIntensity && f.MeanIntensity < maxMeanIntensity):
		return ReasonMeanIntensity
	case !(f.StdIntensity > minStdIntensity && f.StdIntensity < maxStdIntensity):
		return ReasonStdIntensity
	case !(f.LocalContrastMean < maxLocalContrast):
		return ReasonLocalContrast
	case f.PeakCount < minPeakCount:
		return ReasonPeakCount
	case f.PeakSpread <= minPeakSpread:
		return ReasonPeakSpread
	// NaN fails this comparison, so an undefined symmetry rejects.
	case !(f.SymmetryScore > minSymmetry):
		return ReasonSymmetry
	case !(float64(f.MaxBinCount) < float64(f.PixelCount)*maxDominantShare):
		return ReasonDominantIntensity
	}
	return ReasonNone
}

type grayImage struct {
	height, width int
	pix           []float64
}

func grayscale(img imaging.PixelImage) grayImage {
	g := grayImage{
		height: img.Height(),
		width:  img.Width(),
		pix:    make([]float64, 0, img.Height()*img.Width()),
	}
	img.Each(func(_, _ int, px []float32) {
		g.pix = append(g.pix, channelMean(px))
	})
	return g
}

func channelMean(px []float32) float64 {
	var sum float64
	for _, v := range px {
		sum += float64(v)
	}
	return sum / float64(len(px))
}

// colorVariation is the population standard deviation, over every value of the
// image, of each channel's deviation from its pixel's channel mean.
func colorVariation(img imaging.PixelImage) float64 {
	devs := make([]float64, 0, img.Len())
	img.Each(func(_, _ int, px []float32) {
		m := channelMean(px)
		for _, v := range px {
			devs = append(devs, float64(v)-m)
		}
	})
	_, std := meanStd(devs)
	return std
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// localContrastMean shifts the flattened gray image cyclically by +1, -1, +width
// and -width, takes the population std of the four differences at each position
// and averages the result.
//
// The shifts run over the flattened array, so a one-pixel shift wraps from the end
// of a row into the neighbouring row and a row shift wraps the last row onto the
// first. The thresholds depend on this wraparound.
func localContrastMean(g grayImage) float64 {
	n := len(g.pix)
	shifts := [4]int{1, -1, g.width, -g.width}

	var total float64
	var diffs [4]float64
	for i := 0; i < n; i++ {
		var sum float64
		for k, s := range shifts {
			diffs[k] = g.pix[rollIndex(i, s, n)] - g.pix[i]
			sum += diffs[k]
		}
		mean := sum / 4
		var sq float64
		for _, d := range diffs {
			sq += (d - mean) * (d - mean)
		}
		total += math.Sqrt(sq / 4)
	}
	return total / float64(n)
}

// rollIndex is the source index of position i after a cyclic shift by s, so that
// rolled[i] = values[rollIndex(i, s, n)].
func rollIndex(i, s, n int) int {
	j := (i - s) % n
	if j < 0 {
		j += n
	}
	return j
}

// edgeIntensity sums the mean absolute horizontal and vertical neighbour differences.
// An axis with no neighbour pairs contributes zero.
func edgeIntensity(g grayImage) float64 {
	var horiz, vert float64
	for y := 0; y < g.height; y++ {
		row := g.pix[y*g.width : (y+1)*g.width]
		for x := 1; x < g.width; x++ {
			horiz += math.Abs(row[x] - row[x-1])
		}
	}
	for y := 1; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			vert += math.Abs(g.pix[y*g.width+x] - g.pix[(y-1)*g.width+x])
		}
	}

	var total float64
	if pairs := g.height * (g.width - 1); pairs > 0 {
		total += horiz / float64(pairs)
	}
	if pairs := (g.height - 1) * g.width; pairs > 0 {
		total += vert / float64(pairs)
	}
	return total
}
