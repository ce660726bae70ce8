package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/akshitverma317/diagnoai/internal/media/sniffer"
)

// Format is the upload encoding.
type Format string

const (
	FormatJPEG  Format = "jpeg"
	FormatPNG   Format = "png"
	FormatDICOM Format = "dicom"
)

// ParseFormat maps a file extension or a sniffer type onto a Format. Unknown
// values map to the empty Format, which means "detect from the bytes".
func ParseFormat(value string) Format {
	switch value {
	case "jpg", ".jpg", ".jpeg", string(sniffer.TypeJPEG):
		return FormatJPEG
	case ".png", string(sniffer.TypePNG):
		return FormatPNG
	case "dcm", ".dcm", string(sniffer.TypeDICOM):
		return FormatDICOM
	default:
		return ""
	}
}

// Normalize decodes raw into a TargetSize x TargetSize x 3 PixelImage.
// The declared format must agree with the bytes; an empty declared format is detected.
func Normalize(raw []byte, declared Format) (PixelImage, error) {
	if len(raw) == 0 {
		return PixelImage{}, decodeErr(declared, errors.New("empty upload"))
	}

	detected, err := sniffer.DetectHead(raw)
	if err != nil {
		return PixelImage{}, decodeErr(declared, err)
	}
	format := ParseFormat(string(detected.Type))
	if format == "" {
		return PixelImage{}, decodeErr(declared, fmt.Errorf("unsupported media type %s", detected.MIME))
	}
	if declared != "" && declared != format {
		return PixelImage{}, decodeErr(declared, fmt.Errorf("content is %s", format))
	}

	switch format {
	case FormatDICOM:
		return normalizeDICOM(raw)
	default:
		return normalizeRaster(raw, format)
	}
}

func normalizeRaster(raw []byte, format Format) (PixelImage, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return PixelImage{}, decodeErr(format, err)
	}
	if src.Bounds().Empty() {
		return PixelImage{}, decodeErr(format, errors.New("image has no pixels"))
	}
	return fromRGBA(resize(opaque(src))), nil
}

// opaque drops the alpha channel and keeps the stored colour of every pixel,
// including fully transparent ones.
func opaque(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var c color.RGBA
			switch px := src.At(x, y).(type) {
			case color.NRGBA:
				c = color.RGBA{R: px.R, G: px.G, B: px.B}
			case color.NRGBA64:
				c = color.RGBA{R: uint8(px.R >> 8), G: uint8(px.G >> 8), B: uint8(px.B >> 8)}
			default:
				n := color.NRGBAModel.Convert(px).(color.NRGBA)
				c = color.RGBA{R: n.R, G: n.G, B: n.B}
			}
			c.A = 0xff
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return dst
}

// resize scales src to the target resolution with bilinear interpolation.
func resize(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, TargetSize, TargetSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func fromRGBA(img *image.RGBA) PixelImage {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	pix := make([]float32, 0, h*w*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			pix = append(pix, float32(row[x*4]), float32(row[x*4+1]), float32(row[x*4+2]))
		}
	}
	return PixelImage{height: h, width: w, channels: 3, pix: pix}
}

// scaleToBytes clips negatives to zero and rescales so the largest sample maps to 255.
// Results are truncated like a uint8 cast. An image whose maximum is not positive stays black.
func scaleToBytes(samples []int) []uint8 {
	peak := 0
	for _, v := range samples {
		if v > peak {
			peak = v
		}
	}

	out := make([]uint8, len(samples))
	if peak == 0 {
		return out
	}
	for i, v := range samples {
		if v <= 0 {
			continue
		}
		out[i] = uint8(float64(v) / float64(peak) * 255.0)
	}
	return out
}

// rasterFromSamples builds an RGBA image from scaled samples holding either one or
// three values per pixel. Single channel data is replicated into R, G and B.
func rasterFromSamples(scaled []uint8, rows, cols, samplesPerPixel int) (*image.RGBA, error) {
	if samplesPerPixel != 1 && samplesPerPixel != 3 {
		return nil, fmt.Errorf("unsupported samples per pixel %d", samplesPerPixel)
	}
	if rows <= 0 || cols <= 0 || len(scaled) < rows*cols*samplesPerPixel {
		return nil, fmt.Errorf("pixel data truncated: have %d samples for %dx%d", len(scaled), rows, cols)
	}

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for i := 0; i < rows*cols; i++ {
		var c color.RGBA
		if samplesPerPixel == 1 {
			v := scaled[i]
			c = color.RGBA{R: v, G: v, B: v, A: 0xff}
		} else {
			c = color.RGBA{R: scaled[i*3], G: scaled[i*3+1], B: scaled[i*3+2], A: 0xff}
		}
		img.SetRGBA(i%cols, i/cols, c)
	}
	return img, nil
}
