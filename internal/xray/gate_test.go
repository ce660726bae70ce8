package xray

import (
	"math"
	"math/rand"
	"testing"

	"github.com/akshitverma317/diagnoai/internal/imaging"
)

const size = imaging.TargetSize

var triangle = []float32{0, 1, 2, 3, 4, 3, 2, 1, 0, -1, -2, -3, -4, -3, -2, -1}

// bimodalColumns builds a 224x224 grayscale-looking RGB image whose left half sits
// around lo and right half around hi, with a gentle triangle ripple across columns.
func bimodalColumns(t *testing.T, lo, hi float32) imaging.PixelImage {
	t.Helper()
	return fromFunc(t, 3, func(_, x, _ int) float32 {
		base := lo
		if x >= size/2 {
			base = hi
		}
		return base + triangle[x%len(triangle)]
	})
}

func fromFunc(t *testing.T, channels int, fn func(y, x, c int) float32) imaging.PixelImage {
	t.Helper()
	pix := make([]float32, 0, size*size*channels)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			for c := 0; c < channels; c++ {
				pix = append(pix, fn(y, x, c))
			}
		}
	}
	img, err := imaging.NewPixelImage(size, size, channels, pix)
	if err != nil {
		t.Fatalf("NewPixelImage() error = %v", err)
	}
	return img
}

func TestEvaluateAcceptsSyntheticRadiograph(t *testing.T) {
	v := Evaluate(bimodalColumns(t, 60, 140))
	if !v.Plausible {
		t.Fatalf("expected plausible x-ray, rejected for %q with %+v", v.Reason, v.Features)
	}

	f := v.Features
	if math.Abs(f.MeanIntensity-100) > 0.5 {
		t.Errorf("MeanIntensity = %v, want ~100", f.MeanIntensity)
	}
	if math.Abs(f.StdIntensity-40) > 0.5 {
		t.Errorf("StdIntensity = %v, want ~40", f.StdIntensity)
	}
	if f.PeakCount < 2 || f.PeakSpread <= 30 {
		t.Errorf("peaks = %d spread = %d, want >=2 peaks spread >30", f.PeakCount, f.PeakSpread)
	}
	if f.ColorVariation != 0 {
		t.Errorf("ColorVariation = %v, want 0 for identical channels", f.ColorVariation)
	}
}

func TestEvaluateMirroredHistogramIsSymmetric(t *testing.T) {
	// 80 and 175 mirror each other around the centre of the [20, 235] histogram range.
	v := Evaluate(bimodalColumns(t, 80, 175))
	if !v.Plausible {
		t.Fatalf("expected plausible x-ray, rejected for %q", v.Reason)
	}
	if math.Abs(v.Features.SymmetryScore-1) > 1e-9 {
		t.Errorf("SymmetryScore = %v, want 1", v.Features.SymmetryScore)
	}
}

func TestEvaluateRejectsUniformGray(t *testing.T) {
	img := fromFunc(t, 3, func(_, _, _ int) float32 { return 128 })

	v := Evaluate(img)
	if v.Plausible {
		t.Fatal("uniform gray image accepted")
	}
	if v.Reason != ReasonStdIntensity {
		t.Errorf("Reason = %q, want %q", v.Reason, ReasonStdIntensity)
	}
	if v.Features.MaxBinCount != v.Features.PixelCount {
		t.Errorf("MaxBinCount = %d, want every pixel (%d) in one bin", v.Features.MaxBinCount, v.Features.PixelCount)
	}
	if v.Features.PeakSpread > 30 {
		t.Errorf("PeakSpread = %d, want a single narrow spike", v.Features.PeakSpread)
	}
}

func TestEvaluateFlatHistogramHasNoPeaks(t *testing.T) {
	// every value sits below the histogram range, so all bins are empty
	img := fromFunc(t, 1, func(_, _, _ int) float32 { return 0 })

	v := Evaluate(img)
	if v.Plausible {
		t.Fatal("black image accepted")
	}
	if v.Features.PeakCount != 0 {
		t.Errorf("PeakCount = %d, want 0", v.Features.PeakCount)
	}
	if !math.IsNaN(v.Features.SymmetryScore) {
		t.Errorf("SymmetryScore = %v, want NaN for a constant histogram", v.Features.SymmetryScore)
	}
}

func TestEvaluateRejectsColorVariation(t *testing.T) {
	// same gray statistics as the accepted image, but with a strong colour cast
	base := bimodalColumns(t, 60, 140)
	offsets := [3]float32{40, -20, -20}
	img := fromFunc(t, 3, func(y, x, c int) float32 {
		return base.At(y, x, 0) + offsets[c]
	})

	for i := 0; i < 3; i++ {
		v := Evaluate(img)
		if v.Plausible || v.Reason != ReasonColorVariation {
			t.Fatalf("run %d: verdict = %+v, want color_variation rejection", i, v)
		}
		if v.Features.ColorVariation <= 25 {
			t.Fatalf("ColorVariation = %v, want > 25", v.Features.ColorVariation)
		}
	}
}

func TestEvaluateRejectsMeanOutsideRange(t *testing.T) {
	tests := []struct {
		name  string
		value func(x int) float32
	}{
		{
			name:  "too dark",
			value: func(x int) float32 { return float32(6 + x%10) },
		},
		{
			name:  "too bright",
			value: func(x int) float32 { return float32(240 + x%8) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := fromFunc(t, 1, func(_, x, _ int) float32 { return tt.value(x) })
			v := Evaluate(img)
			if v.Plausible {
				t.Fatal("image accepted")
			}
			if v.Reason != ReasonMeanIntensity {
				t.Errorf("Reason = %q, want %q", v.Reason, ReasonMeanIntensity)
			}
		})
	}
}

func TestEvaluateRejectsSharpEdges(t *testing.T) {
	img := fromFunc(t, 1, func(_, x, _ int) float32 {
		if x%2 == 0 {
			return 0
		}
		return 255
	})

	v := Evaluate(img)
	if v.Plausible || v.Reason != ReasonEdgeIntensity {
		t.Fatalf("verdict = %q, want %q", v.Reason, ReasonEdgeIntensity)
	}
	if math.Abs(v.Features.EdgeIntensity-255) > 1e-9 {
		t.Errorf("EdgeIntensity = %v, want 255", v.Features.EdgeIntensity)
	}
}

func TestIsPlausibleXrayDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	noise := fromFunc(t, 3, func(_, _, _ int) float32 { return float32(rng.Intn(256)) })
	xray := bimodalColumns(t, 60, 140)

	for _, img := range []imaging.PixelImage{noise, xray} {
		want := Evaluate(img)
		for i := 0; i < 5; i++ {
			got := Evaluate(img)
			if got.Plausible != want.Plausible || got.Reason != want.Reason {
				t.Fatalf("run %d: verdict changed from %+v to %+v", i, want, got)
			}
			if got.Features.LocalContrastMean != want.Features.LocalContrastMean ||
				got.Features.EdgeIntensity != want.Features.EdgeIntensity {
				t.Fatalf("run %d: features changed", i)
			}
		}
	}

	if IsPlausibleXray(noise) {
		t.Error("random noise accepted")
	}
	if !IsPlausibleXray(xray) {
		t.Error("synthetic radiograph rejected")
	}
}

func TestEvaluateEmptyImage(t *testing.T) {
	if v := Evaluate(imaging.PixelImage{}); v.Plausible || v.Reason != ReasonEmpty {
		t.Fatalf("verdict = %+v, want empty_image rejection", v)
	}
}

func TestRollIndex(t *testing.T) {
	tests := []struct {
		i, s, n int
		want    int
	}{
		{i: 0, s: 1, n: 6, want: 5},
		{i: 5, s: 1, n: 6, want: 4},
		{i: 5, s: -1, n: 6, want: 0},
		{i: 1, s: 3, n: 6, want: 4},
		{i: 4, s: -3, n: 6, want: 1},
	}

	for _, tt := range tests {
		if got := rollIndex(tt.i, tt.s, tt.n); got != tt.want {
			t.Errorf("rollIndex(%d, %d, %d) = %d, want %d", tt.i, tt.s, tt.n, got, tt.want)
		}
	}
}

func TestLocalContrastWrapsAcrossRows(t *testing.T) {
	// 2x3 image: a one-pixel shift pulls the previous row's last value into column 0
	g := grayImage{height: 2, width: 3, pix: []float64{0, 0, 0, 0, 0, 12}}

	// position 0: diffs {12, 0, 0, 0} -> std = sqrt(27)
	// position 4: diffs {0, 12, 0, 0} -> std = sqrt(27)
	// position 5: diffs {-12, -12, -12, -12} -> std = 0
	// position 2: diffs {0, 0, 12, 12} -> std = 6
	want := (2*math.Sqrt(27) + 6) / 6
	if got := localContrastMean(g); math.Abs(got-want) > 1e-12 {
		t.Fatalf("localContrastMean = %v, want %v", got, want)
	}
}
