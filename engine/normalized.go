package engine

import (
	"math"

	iface "PartInspect/interface"
)

// matchTransformNormalized estimates the similarity transform carrying
// the detected frame onto the template frame, rewrites every detection
// into the template frame, and then matches with the direct-coordinate
// strategy on the aligned sets. Meant for parts that an external crop
// or alignment step has already approximately localized.
//
// Anchor correspondences are built from the rotation-invariant scalar
// pairing, which tolerates the not-yet-removed rotation. With three or
// more anchors the similarity estimate is refined by the least-squares
// affine fit; fewer fall back to the closed-form similarity, and a
// single anchor degrades to translation only.
func matchTransformNormalized(tpl *iface.Template, dets []iface.DetectedObject, cfg MatchConfig) (assignment, error) {
	if len(dets) == 0 {
		return newAssignment(len(tpl.Features), 0), nil
	}

	srcPts, dstPts := anchorPairs(tpl, dets, cfg)
	if len(srcPts) == 0 {
		// Nothing to anchor on: every feature resolves against the
		// raw frame, which the direct matcher handles deterministically.
		return matchDirect(tpl, dets, cfg)
	}

	apply, err := detectedToTemplate(srcPts, dstPts)
	if err != nil {
		return assignment{}, err
	}

	aligned := make([]iface.DetectedObject, len(dets))
	for i, d := range dets {
		aligned[i] = d.Moved(apply(d.Center))
	}
	return matchDirect(tpl, aligned, cfg)
}

// detectedToTemplate picks the transform model by anchor count and
// returns its application function, detected frame in, template frame
// out.
func detectedToTemplate(src, dst []iface.Point) (func(iface.Point) iface.Point, error) {
	if len(src) >= 3 {
		aff, err := EstimateAffine(src, dst)
		if err == nil {
			return aff.Apply, nil
		}
		// Collinear anchors can defeat the affine solve; the
		// similarity model is always well posed for >=2 pairs.
	}
	sim, err := EstimateSimilarity(src, dst)
	if err != nil {
		return nil, err
	}
	return sim.Apply, nil
}

// anchorPairs builds provisional detected->template correspondences
// from the centroid-distance pairing, same class only. These are
// anchors for transform estimation, not final claims.
func anchorPairs(tpl *iface.Template, dets []iface.DetectedObject, cfg MatchConfig) (src, dst []iface.Point) {
	tplCentroid := tpl.Centroid()
	detCentroid := detectionCentroid(dets)

	detDist := make([]float64, len(dets))
	for i, d := range dets {
		rel := d.Center.Sub(detCentroid)
		detDist[i] = math.Hypot(rel.X, rel.Y)
	}

	maxDiff := radiusTolerance(tpl, cfg)
	taken := make([]bool, len(dets))
	for _, f := range tpl.Features {
		rel := f.RelativeTo(tplCentroid)
		fDist := math.Hypot(rel.X, rel.Y)
		best := -1
		bestDiff := 0.0
		for j := range dets {
			if taken[j] || dets[j].ClassID != f.ClassID {
				continue
			}
			diff := math.Abs(fDist - detDist[j])
			if diff > maxDiff {
				continue
			}
			if best < 0 || diff < bestDiff {
				best = j
				bestDiff = diff
			}
		}
		if best < 0 {
			continue
		}
		taken[best] = true
		src = append(src, dets[best].Center)
		dst = append(dst, f.Position)
	}
	return src, dst
}
