package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func normalizeDICOM(raw []byte) (pix PixelImage, err error) {
	// the parser panics on some malformed element lengths
	defer func() {
		if r := recover(); r != nil {
			pix, err = PixelImage{}, decodeErr(FormatDICOM, fmt.Errorf("malformed dataset: %v", r))
		}
	}()

	dataset, err := dicom.Parse(bytes.NewReader(raw), int64(len(raw)), nil)
	if err != nil {
		return PixelImage{}, decodeErr(FormatDICOM, err)
	}

	elem, err := dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return PixelImage{}, decodeErr(FormatDICOM, fmt.Errorf("pixel data: %w", err))
	}

	info := dicom.MustGetPixelDataInfo(elem.Value)
	if len(info.Frames) == 0 {
		return PixelImage{}, decodeErr(FormatDICOM, errors.New("no frames in pixel data"))
	}

	// multi-frame studies are classified on their first frame
	fr := info.Frames[0]
	if fr.IsEncapsulated() {
		img, err := fr.GetImage()
		if err != nil {
			return PixelImage{}, decodeErr(FormatDICOM, fmt.Errorf("encapsulated frame: %w", err))
		}
		return fromEncapsulated(img)
	}

	native := fr.NativeData
	if len(native.Data) == 0 {
		return PixelImage{}, decodeErr(FormatDICOM, errors.New("empty native frame"))
	}
	samplesPerPixel := len(native.Data[0])
	samples := make([]int, 0, len(native.Data)*samplesPerPixel)
	for _, px := range native.Data {
		samples = append(samples, px...)
	}
	img, err := rasterFromSamples(scaleToBytes(samples), native.Rows, native.Cols, samplesPerPixel)
	if err != nil {
		return PixelImage{}, decodeErr(FormatDICOM, err)
	}
	return fromRGBA(resize(img)), nil
}

// fromEncapsulated applies the native scaling rule to an already decoded frame.
func fromEncapsulated(img image.Image) (PixelImage, error) {
	b := img.Bounds()
	if b.Empty() {
		return PixelImage{}, decodeErr(FormatDICOM, errors.New("frame has no pixels"))
	}

	samples := make([]int, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			samples = append(samples, int(r), int(g), int(bl))
		}
	}
	rgba, err := rasterFromSamples(scaleToBytes(samples), b.Dy(), b.Dx(), 3)
	if err != nil {
		return PixelImage{}, decodeErr(FormatDICOM, err)
	}
	return fromRGBA(resize(rgba)), nil
}
