package imaging

import "fmt"

// TargetSize is the square resolution every upload is normalized to.
const TargetSize = 224

// PixelImage is a row-major height x width x channels array of intensities in [0, 255].
// The backing slice is never exposed, so a PixelImage is safe to share between goroutines.
type PixelImage struct {
	height   int
	width    int
	channels int
	pix      []float32
}

// NewPixelImage copies pix into a new image. Channels must be 1 or 3.
func NewPixelImage(height, width, channels int, pix []float32) (PixelImage, error) {
	if height <= 0 || width <= 0 {
		return PixelImage{}, fmt.Errorf("invalid dimensions %dx%d", height, width)
	}
	if channels != 1 && channels != 3 {
		return PixelImage{}, fmt.Errorf("unsupported channel count %d", channels)
	}
	if len(pix) != height*width*channels {
		return PixelImage{}, fmt.Errorf("pixel count %d does not match %dx%dx%d", len(pix), height, width, channels)
	}

	owned := make([]float32, len(pix))
	copy(owned, pix)
	return PixelImage{height: height, width: width, channels: channels, pix: owned}, nil
}

func (p PixelImage) Height() int   { return p.height }
func (p PixelImage) Width() int    { return p.width }
func (p PixelImage) Channels() int { return p.channels }

// Len is the number of stored values (height*width*channels).
func (p PixelImage) Len() int { return len(p.pix) }

func (p PixelImage) Empty() bool { return len(p.pix) == 0 }

// At returns the value of channel c at row y, column x.
func (p PixelImage) At(y, x, c int) float32 {
	return p.pix[(y*p.width+x)*p.channels+c]
}

// Values returns a copy of the raw row-major values.
func (p PixelImage) Values() []float32 {
	out := make([]float32, len(p.pix))
	copy(out, p.pix)
	return out
}

// Each calls fn for every pixel with its channel values. The slice passed to fn
// is only valid for the duration of the call.
func (p PixelImage) Each(fn func(y, x int, px []float32)) {
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			i := (y*p.width + x) * p.channels
			fn(y, x, p.pix[i:i+p.channels:i+p.channels])
		}
	}
}
