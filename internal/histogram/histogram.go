package histogram

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultBins is the number of bins per color channel.
const DefaultBins = 32

// intensityRange is the exclusive upper bound of 8-bit channel values.
const intensityRange = 256

// ErrChannelLength is returned when persisted channel arrays disagree in length.
var ErrChannelLength = errors.New("histogram channels must have equal non-zero length")

// Vector is a color-distribution feature: three contiguous per-channel
// histograms in the fixed order Red, Green, Blue.
type Vector []float32

// Bins returns the number of bins per channel.
func (v Vector) Bins() int {
	return len(v) / 3
}

// Channels splits the vector back into its R, G and B segments.
// The returned slices alias the vector.
func (v Vector) Channels() (r, g, b []float32) {
	n := v.Bins()
	return v[:n], v[n : 2*n], v[2*n : 3*n]
}

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Decode decodes raw image bytes. Supported formats are JPEG, PNG, GIF,
// BMP, TIFF and WebP.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Compute builds the histogram vector of an image. Each channel value v in
// [0,256) lands in bin v*bins/256. Alpha is ignored; pixels are read
// non-premultiplied.
func Compute(img image.Image, bins int) Vector {
	if bins <= 0 {
		bins = DefaultBins
	}
	vec := make(Vector, 3*bins)
	red, green, blue := vec.Channels()

	add := func(r, g, b uint8) {
		red[int(r)*bins/intensityRange]++
		green[int(g)*bins/intensityRange]++
		blue[int(b)*bins/intensityRange]++
	}

	bounds := img.Bounds()
	switch src := img.(type) {
	case *image.NRGBA:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := src.Pix[src.PixOffset(bounds.Min.X, y):]
			for x := 0; x < bounds.Dx(); x++ {
				add(row[4*x], row[4*x+1], row[4*x+2])
			}
		}
	case *image.YCbCr:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				yi := src.YOffset(x, y)
				ci := src.COffset(x, y)
				r, g, b := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				add(r, g, b)
			}
		}
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				add(c.R, c.G, c.B)
			}
		}
	}

	return vec
}

// ComputeBytes decodes image bytes and computes their histogram vector.
func ComputeBytes(data []byte, bins int) (Vector, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Compute(img, bins), nil
}

// FromChannels reconstructs a vector from persisted per-channel arrays.
// The result has the same layout as Compute.
func FromChannels(r, g, b []float32) (Vector, error) {
	if len(r) == 0 || len(r) != len(g) || len(r) != len(b) {
		return nil, fmt.Errorf("%w: R=%d G=%d B=%d", ErrChannelLength, len(r), len(g), len(b))
	}
	vec := make(Vector, 0, 3*len(r))
	vec = append(vec, r...)
	vec = append(vec, g...)
	vec = append(vec, b...)
	return vec, nil
}
