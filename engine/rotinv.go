package engine

import (
	"math"

	iface "PartInspect/interface"
)

// matchRotationInvariant pairs features to detections by their scalar
// distance from the respective set centroid, which is unchanged by
// rotating the whole part. For each feature the closest unclaimed
// same-class detection by centroid-distance difference within
// MaxMatchDistance is claimed. When no same-class candidate is in
// range but a different-class one sits within the mismatch ratio of
// the range, it is claimed as TYPE_MISMATCH: misclassification is
// penalized visibly instead of hiding as an omission plus an extra.
//
// A same-class candidate is only accepted when its per-axis deviation
// in centroid-relative coordinates stays within twice the feature
// tolerance; residual rotation error not captured by the scalar check
// is absorbed there. Candidates beyond that are left unclaimed and the
// feature reports MISSING.
func matchRotationInvariant(tpl *iface.Template, dets []iface.DetectedObject, cfg MatchConfig) (assignment, error) {
	asg := newAssignment(len(tpl.Features), len(dets))
	if len(dets) == 0 {
		return asg, nil
	}

	tplCentroid := tpl.Centroid()
	detCentroid := detectionCentroid(dets)

	featRel := make([]iface.Point, len(tpl.Features))
	featDist := make([]float64, len(tpl.Features))
	for i, f := range tpl.Features {
		featRel[i] = f.RelativeTo(tplCentroid)
		featDist[i] = math.Hypot(featRel[i].X, featRel[i].Y)
	}
	detRel := make([]iface.Point, len(dets))
	detDist := make([]float64, len(dets))
	for i, d := range dets {
		detRel[i] = d.Center.Sub(detCentroid)
		detDist[i] = math.Hypot(detRel[i].X, detRel[i].Y)
	}

	maxDiff := radiusTolerance(tpl, cfg)
	mismatchRange := cfg.mismatchRatio() * maxDiff
	for i, f := range tpl.Features {
		tolX := toleranceX(tpl, cfg, f)
		tolY := toleranceY(tpl, cfg, f)
		best, bestCross := -1, -1
		bestDiff, bestCrossDiff := 0.0, 0.0
		for j := range dets {
			if asg.used[j] {
				continue
			}
			diff := math.Abs(featDist[i] - detDist[j])
			if dets[j].ClassID == f.ClassID {
				if diff > maxDiff {
					continue
				}
				xErr := math.Abs(featRel[i].X - detRel[j].X)
				yErr := math.Abs(featRel[i].Y - detRel[j].Y)
				if xErr > 2*tolX || yErr > 2*tolY {
					continue
				}
				if best < 0 || diff < bestDiff {
					best = j
					bestDiff = diff
				}
			} else if diff <= mismatchRange {
				if bestCross < 0 || diff < bestCrossDiff {
					bestCross = j
					bestCrossDiff = diff
				}
			}
		}

		switch {
		case best >= 0:
			asg.used[best] = true
			asg.claims[i] = claim{
				det:  best,
				xErr: math.Abs(featRel[i].X - detRel[best].X),
				yErr: math.Abs(featRel[i].Y - detRel[best].Y),
			}
		case bestCross >= 0:
			asg.used[bestCross] = true
			asg.claims[i] = claim{
				det:      bestCross,
				mismatch: true,
				xErr:     math.Abs(featRel[i].X - detRel[bestCross].X),
				yErr:     math.Abs(featRel[i].Y - detRel[bestCross].Y),
			}
		}
	}
	return asg, nil
}

// radiusTolerance is the acceptance window on centroid-distance
// difference. Templates tuned with a topology similarity threshold
// override the global match distance.
func radiusTolerance(tpl *iface.Template, cfg MatchConfig) float64 {
	if tpl.Topology.SimilarityThreshold > 0 {
		return tpl.Topology.SimilarityThreshold
	}
	return cfg.MaxMatchDistance
}

func detectionCentroid(dets []iface.DetectedObject) iface.Point {
	if len(dets) == 0 {
		return iface.Point{}
	}
	var sx, sy float64
	for _, d := range dets {
		sx += d.Center.X
		sy += d.Center.Y
	}
	n := float64(len(dets))
	return iface.Point{X: sx / n, Y: sy / n}
}
