package engine

import (
	"testing"

	iface "PartInspect/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoUZeroAreaBox(t *testing.T) {
	a := iface.CandidateBox{X1: 10, Y1: 10, X2: 10, Y2: 20} // zero width
	b := iface.CandidateBox{X1: 0, Y1: 0, X2: 20, Y2: 20}
	assert.Equal(t, 0.0, IoU(a, b))
	assert.Equal(t, 0.0, IoU(b, a))
}

func TestIoUOverlap(t *testing.T) {
	a := iface.CandidateBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := iface.CandidateBox{X1: 5, Y1: 0, X2: 15, Y2: 10}
	// Intersection 50, union 150.
	assert.InDelta(t, 1.0/3.0, IoU(a, b), 1e-9)
}

func TestSuppressKeepsHigherScore(t *testing.T) {
	// Two same-class boxes with IoU 0.9 over a 0.5 threshold: the
	// higher-scoring one survives.
	boxes := []iface.CandidateBox{
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Score: 0.7, ClassID: 0, Anchor: 0},
		{X1: 0, Y1: 0, X2: 100, Y2: 95, Score: 0.9, ClassID: 0, Anchor: 1},
	}
	require.Greater(t, IoU(boxes[0], boxes[1]), 0.5)

	kept := SuppressBoxes(boxes, 0.5)
	require.Len(t, kept, 1)
	assert.InDelta(t, 0.9, kept[0].Score, 1e-9)
}

func TestSuppressPerClass(t *testing.T) {
	// Same geometry, different classes: both survive.
	boxes := []iface.CandidateBox{
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Score: 0.7, ClassID: 0, Anchor: 0},
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Score: 0.9, ClassID: 1, Anchor: 1},
	}
	kept := SuppressBoxes(boxes, 0.5)
	assert.Len(t, kept, 2)
}

func TestSuppressEqualScoreKeepsEarlierAnchor(t *testing.T) {
	boxes := []iface.CandidateBox{
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Score: 0.8, ClassID: 0, Anchor: 3},
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Score: 0.8, ClassID: 0, Anchor: 7},
	}
	kept := SuppressBoxes(boxes, 0.5)
	require.Len(t, kept, 1)
	assert.Equal(t, 3, kept[0].Anchor)

	// Same outcome with the slice order reversed.
	reversed := []iface.CandidateBox{boxes[1], boxes[0]}
	kept = SuppressBoxes(reversed, 0.5)
	require.Len(t, kept, 1)
	assert.Equal(t, 3, kept[0].Anchor)
}

func TestSuppressIdempotent(t *testing.T) {
	boxes := []iface.CandidateBox{
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Score: 0.9, ClassID: 0, Anchor: 0},
		{X1: 5, Y1: 5, X2: 105, Y2: 105, Score: 0.8, ClassID: 0, Anchor: 1},
		{X1: 300, Y1: 300, X2: 400, Y2: 400, Score: 0.7, ClassID: 0, Anchor: 2},
		{X1: 0, Y1: 0, X2: 50, Y2: 50, Score: 0.6, ClassID: 1, Anchor: 3},
	}
	once := SuppressBoxes(boxes, 0.5)
	twice := SuppressBoxes(once, 0.5)
	assert.Equal(t, once, twice)
}

func TestSuppressEmpty(t *testing.T) {
	assert.Nil(t, SuppressBoxes(nil, 0.5))
}
