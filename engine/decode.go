package engine

import (
	"fmt"

	iface "PartInspect/interface"
)

// DecodeBoxes converts a raw [channels][anchors] detector tensor into
// candidate boxes in original-image pixel coordinates. The first four
// channels are the box in center-width-height form, the remaining
// channels are per-class scores. For every anchor the arg-max class is
// taken; anchors under confThreshold are discarded. Letterbox padding
// is removed before the scale is undone, in that order, so the
// geometry maps back without bias.
func DecodeBoxes(raw iface.RawOutput, confThreshold float64) ([]iface.CandidateBox, error) {
	if len(raw.Data) == 0 {
		return nil, nil
	}
	if raw.NumClasses <= 0 {
		return nil, fmt.Errorf("decode: numClasses must be positive, got %d", raw.NumClasses)
	}
	if len(raw.Data) != 4+raw.NumClasses {
		return nil, fmt.Errorf("decode: expected %d channels (4 box + %d classes), got %d",
			4+raw.NumClasses, raw.NumClasses, len(raw.Data))
	}
	anchors := len(raw.Data[0])
	for c := 1; c < len(raw.Data); c++ {
		if len(raw.Data[c]) != anchors {
			return nil, fmt.Errorf("decode: channel %d has %d anchors, channel 0 has %d",
				c, len(raw.Data[c]), anchors)
		}
	}
	lb := raw.Letterbox
	if lb.Scale == 0 {
		lb.Scale = 1
	}

	var out []iface.CandidateBox
	for a := 0; a < anchors; a++ {
		bestClass := 0
		bestScore := raw.Data[4][a]
		for c := 1; c < raw.NumClasses; c++ {
			if raw.Data[4+c][a] > bestScore {
				bestScore = raw.Data[4+c][a]
				bestClass = c
			}
		}
		if float64(bestScore) < confThreshold {
			continue
		}

		cx := float64(raw.Data[0][a])
		cy := float64(raw.Data[1][a])
		w := float64(raw.Data[2][a])
		h := float64(raw.Data[3][a])

		x1 := unletterbox(cx-w/2, lb.PadX, lb.Scale)
		y1 := unletterbox(cy-h/2, lb.PadY, lb.Scale)
		x2 := unletterbox(cx+w/2, lb.PadX, lb.Scale)
		y2 := unletterbox(cy+h/2, lb.PadY, lb.Scale)

		out = append(out, iface.CandidateBox{
			X1: x1, Y1: y1, X2: x2, Y2: y2,
			Score:   float64(bestScore),
			ClassID: bestClass,
			Anchor:  a,
		})
	}
	return out, nil
}

// unletterbox maps one letterboxed coordinate back into the original
// image frame: remove padding first, then divide by the scale ratio.
func unletterbox(v, pad, scale float64) float64 {
	return (v - pad) / scale
}

// ToDetections converts suppressed candidate boxes into detected
// objects, resolving class names when a name table is supplied.
func ToDetections(boxes []iface.CandidateBox, names []string) []iface.DetectedObject {
	dets := make([]iface.DetectedObject, 0, len(boxes))
	for _, b := range boxes {
		d := iface.DetectedObject{
			ClassID:    b.ClassID,
			Center:     b.Center(),
			Width:      b.X2 - b.X1,
			Height:     b.Y2 - b.Y1,
			Confidence: b.Score,
		}
		if b.ClassID >= 0 && b.ClassID < len(names) {
			d.ClassName = names[b.ClassID]
		}
		dets = append(dets, d)
	}
	return dets
}
