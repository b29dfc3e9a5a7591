package engine

import (
	"sort"

	iface "PartInspect/interface"
)

// IoU is the intersection-over-union of two candidate boxes. Boxes
// with zero area contribute no overlap, so their IoU is 0.
func IoU(a, b iface.CandidateBox) float64 {
	areaA := a.Area()
	areaB := b.Area()
	if areaA == 0 || areaB == 0 {
		return 0
	}
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)
	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	return inter / (areaA + areaB - inter)
}

// SuppressBoxes runs greedy per-class non-maximum suppression.
// Within each class, candidates are taken highest score first; a kept
// box suppresses every remaining same-class box whose IoU with it
// exceeds iouThreshold. The sort is stable over the original anchor
// order, so equal scores resolve deterministically. The output keeps
// anchor order within each class group, classes ordered ascending.
func SuppressBoxes(boxes []iface.CandidateBox, iouThreshold float64) []iface.CandidateBox {
	if len(boxes) == 0 {
		return nil
	}

	byClass := make(map[int][]iface.CandidateBox)
	classIDs := make([]int, 0)
	for _, b := range boxes {
		if _, ok := byClass[b.ClassID]; !ok {
			classIDs = append(classIDs, b.ClassID)
		}
		byClass[b.ClassID] = append(byClass[b.ClassID], b)
	}
	sort.Ints(classIDs)

	var kept []iface.CandidateBox
	for _, cls := range classIDs {
		group := byClass[cls]
		// Input arrives in anchor order already, but suppression must
		// not depend on that.
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Score != group[j].Score {
				return group[i].Score > group[j].Score
			}
			return group[i].Anchor < group[j].Anchor
		})
		suppressed := make([]bool, len(group))
		var survivors []iface.CandidateBox
		for i := range group {
			if suppressed[i] {
				continue
			}
			survivors = append(survivors, group[i])
			for j := i + 1; j < len(group); j++ {
				if suppressed[j] {
					continue
				}
				if IoU(group[i], group[j]) > iouThreshold {
					suppressed[j] = true
				}
			}
		}
		sort.SliceStable(survivors, func(i, j int) bool {
			return survivors[i].Anchor < survivors[j].Anchor
		})
		kept = append(kept, survivors...)
	}
	return kept
}
