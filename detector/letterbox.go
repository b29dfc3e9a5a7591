package detector

import (
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"strings"

	iface "PartInspect/interface"

	"gocv.io/x/gocv"
)

// Letterbox fits an image into a size x size square for the network:
// scale by the limiting dimension, then pad the short side evenly with
// neutral gray. The returned parameters are what the box decoder needs
// to invert the mapping.
func Letterbox(img gocv.Mat, size int) (gocv.Mat, iface.LetterboxParams, error) {
	w := img.Cols()
	h := img.Rows()
	if w == 0 || h == 0 {
		return gocv.NewMat(), iface.LetterboxParams{}, errors.New("letterbox: empty image")
	}

	scale := min(float64(size)/float64(w), float64(size)/float64(h))
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Point{X: newW, Y: newH}, 0, 0, gocv.InterpolationLinear)
	defer resized.Close()

	padX := (size - newW) / 2
	padY := (size - newH) / 2
	boxed := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &boxed,
		padY, size-newH-padY, padX, size-newW-padX,
		gocv.BorderConstant, color.RGBA{R: 114, G: 114, B: 114, A: 255})

	params := iface.LetterboxParams{
		Scale: scale,
		PadX:  float64(padX),
		PadY:  float64(padY),
	}
	return boxed, params, nil
}

// Base64ToMat decodes a base64 string (optionally with a data URL
// prefix) into a Mat.
func Base64ToMat(b64 string) (gocv.Mat, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return gocv.NewMat(), err
	}
	return BytesToMat(data)
}

// BytesToMat decodes encoded image bytes into a Mat. An empty Mat from
// IMDecode means the decode failed.
func BytesToMat(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), err
	}
	if mat.Empty() {
		if err := mat.Close(); err != nil {
			return gocv.Mat{}, err
		}
		return gocv.NewMat(), errors.New("decoded image is empty or unsupported format")
	}
	return mat, nil
}

// EncodeJPEG serializes a Mat for the wire.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
