package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/akshitverma317/diagnoai/internal/imaging"
)

const (
	ClassEdema        = "Edema"
	ClassNormal       = "Normal"
	ClassPneumonia    = "Pneumonia"
	ClassTuberculosis = "Tuberculosis"
	ClassEffusion     = "Effusion"
	ClassNotEdema     = "NotEdema"
)

// PrimaryClasses is the output order of the multi-class model.
var PrimaryClasses = []string{ClassEdema, ClassNormal, ClassPneumonia, ClassTuberculosis, ClassEffusion}

var (
	ErrClassifierFailure = errors.New("classifier failure")
	ErrClassifierTimeout = fmt.Errorf("%w: inference timed out", ErrClassifierFailure)
)

// Model is a pretrained network. Implementations must be safe for concurrent use.
type Model interface {
	Predict(ctx context.Context, input Tensor) ([]float64, error)
}

// Tensor is a batch of one image scaled to [0, 1], laid out height x width x channels.
type Tensor struct {
	Height   int
	Width    int
	Channels int
	Values   []float32
}

// NewTensor scales img by 1/255.
func NewTensor(img imaging.PixelImage) Tensor {
	values := img.Values()
	for i := range values {
		values[i] /= 255
	}
	return Tensor{
		Height:   img.Height(),
		Width:    img.Width(),
		Channels: img.Channels(),
		Values:   values,
	}
}

// Nested returns the values as a [height][width][channels] array.
func (t Tensor) Nested() [][][]float32 {
	out := make([][][]float32, t.Height)
	for y := range out {
		row := make([][]float32, t.Width)
		for x := range row {
			i := (y*t.Width + x) * t.Channels
			row[x] = t.Values[i : i+t.Channels : i+t.Channels]
		}
		out[y] = row
	}
	return out
}

func validProbabilities(probs []float64) error {
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return fmt.Errorf("%w: probability %d is %v", ErrClassifierFailure, i, p)
		}
	}
	return nil
}
