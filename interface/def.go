package iface

import "math"

// Point is a position in pixel space. Which frame (original image,
// letterboxed input, template reference image) depends on context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Distance(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

// CandidateBox is one decoded anchor before suppression, in corner form
// and original-image pixel coordinates. Anchor keeps the original anchor
// index so equal-score ties stay deterministic.
type CandidateBox struct {
	X1, Y1, X2, Y2 float64
	Score          float64
	ClassID        int
	Anchor         int
}

func (b CandidateBox) Area() float64 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b CandidateBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// DetectedObject is one object reported by the detector for one image,
// after decoding and suppression. Instances are never mutated after
// creation; coordinate-frame rewrites produce new instances.
type DetectedObject struct {
	ClassID    int     `json:"classId"`
	ClassName  string  `json:"className,omitempty"`
	Center     Point   `json:"center"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Moved returns a copy of the detection with its center replaced.
// Used by the transform-normalized matcher to rewrite detections into
// the template frame without touching the caller's slice.
func (d DetectedObject) Moved(center Point) DetectedObject {
	d.Center = center
	return d
}

// LetterboxParams records the scaling and padding applied before
// inference so decoded boxes can be mapped back to image pixels.
type LetterboxParams struct {
	Scale float64 `json:"scale"`
	PadX  float64 `json:"padX"`
	PadY  float64 `json:"padY"`
}

// RawOutput is the detector boundary payload: a [channels][anchors]
// tensor with 4 box channels followed by NumClasses score channels.
type RawOutput struct {
	Data       [][]float32     `json:"data"`
	NumClasses int             `json:"numClasses"`
	Letterbox  LetterboxParams `json:"letterbox"`
	Names      []string        `json:"names,omitempty"`
}
