package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"golang.org/x/image/draw"
)

var (
	pngSignature  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegSignature = []byte{0xFF, 0xD8}
)

// DecodeImage detects PNG or JPEG data and decodes it into RGBA.
func DecodeImage(data []byte) (*image.RGBA, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case bytes.HasPrefix(data, pngSignature):
		img, err = png.Decode(bytes.NewReader(data))
	case bytes.HasPrefix(data, jpegSignature):
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, ErrUnrecognizedFormat
	}
	if err != nil {
		return nil, err
	}
	return ToRGBA(img), nil
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, copying when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WritePNG writes img to filename, or to stdout when filename is empty.
func WritePNG(filename string, img image.Image) error {
	var output io.Writer = os.Stdout
	if filename != "" {
		file, err := os.Create(filename)
		if err != nil {
			return err
		}
		defer file.Close()
		output = file
	}
	return png.Encode(output, img)
}

// WorldFile renders the six-line world file for g.
func WorldFile(g *GeoImage) []byte {
	px, py := g.PixelSize()
	var buf bytes.Buffer
	// pixel size x, rotation, rotation, pixel size y (negative), top left x, top left y
	fmt.Fprintf(&buf, "%24.10f\n", px)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", -py)
	fmt.Fprintf(&buf, "%24.10f\n", g.Extent.Min[0]+px/2)
	fmt.Fprintf(&buf, "%24.10f\n", g.Extent.Max[1]-py/2)
	return buf.Bytes()
}

// WriteWorldFile writes the world file next to imageFile, returning its name.
func WriteWorldFile(imageFile string, g *GeoImage) (string, error) {
	if imageFile == "" {
		return "", fmt.Errorf("can't write a worldfile when writing to stdout")
	}
	worldFilename := imageFile
	if idx := strings.LastIndex(worldFilename, "."); idx != -1 {
		worldFilename = worldFilename[:idx]
	}
	worldFilename += ".pgw"
	if err := os.WriteFile(worldFilename, WorldFile(g), 0o644); err != nil {
		return "", err
	}
	return worldFilename, nil
}
