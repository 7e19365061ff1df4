package classifier

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"mammo-rag/internal/models"
)

const (
	// DefaultImageSize is the square input edge of the ResNet50 backbone.
	DefaultImageSize = 224
	// DefaultMaxPixels bounds the decoded size of an upload.
	DefaultMaxPixels = 50_000_000
)

// ImageNet channel means in BGR order, as used by the caffe-style ResNet50
// preprocessing the network was trained with.
var bgrMean = [3]float32{103.939, 116.779, 123.68}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Preprocess decodes an uploaded image and returns a (1, size, size, 3) BGR
// tensor with the ImageNet means subtracted. Alpha is dropped and grayscale
// input is expanded to three channels. Images whose header declares more
// than maxPixels pixels are rejected before any pixel data is decoded.
func Preprocess(raw []byte, size, maxPixels int) (*Tensor, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if len(raw) == 0 {
		return nil, models.Errorf(models.ErrDecode, "image is empty")
	}
	hdr, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, models.Wrap(models.ErrDecode, "decode image header", err)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return nil, models.Errorf(models.ErrDecode, "%s image has no pixels", format)
	}
	if int64(hdr.Width)*int64(hdr.Height) > int64(maxPixels) {
		return nil, models.Errorf(models.ErrDecode, "%s image is %dx%d, over the %d pixel limit", format, hdr.Width, hdr.Height, maxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, models.Wrap(models.ErrDecode, "decode image", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, models.Errorf(models.ErrDecode, "%s image has no pixels", format)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	data := make([]float32, size*size*3)
	for i := 0; i < size*size; i++ {
		r, g, bl := dst.Pix[i*4], dst.Pix[i*4+1], dst.Pix[i*4+2]
		data[i*3] = float32(bl) - bgrMean[0]
		data[i*3+1] = float32(g) - bgrMean[1]
		data[i*3+2] = float32(r) - bgrMean[2]
	}
	return &Tensor{Shape: []int64{1, int64(size), int64(size), 3}, Data: data}, nil
}

// Nested returns the tensor as nested slices matching Shape, the layout the
// TensorFlow Serving row format expects.
func (t *Tensor) Nested() [][][][]float32 {
	h, w, c := int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
	out := make([][][][]float32, t.Shape[0])
	for n := range out {
		out[n] = make([][][]float32, h)
		for y := 0; y < h; y++ {
			out[n][y] = make([][]float32, w)
			for x := 0; x < w; x++ {
				off := ((n*h+y)*w + x) * c
				out[n][y][x] = t.Data[off : off+c]
			}
		}
	}
	return out
}
