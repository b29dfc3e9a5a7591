package engine

import (
	"math"

	iface "PartInspect/interface"
)

// matchDirect pairs features to detections on absolute coordinates
// after removing gross translation: both point sets are re-centered on
// their own bounding-box center (not centroid). Each template feature,
// in template order, claims the nearest unclaimed same-class detection
// within MaxMatchDistance. Ties resolve by smallest distance, then by
// detection index. Sensitive to rotation; callers pre-align or accept
// degraded accuracy.
func matchDirect(tpl *iface.Template, dets []iface.DetectedObject, cfg MatchConfig) (assignment, error) {
	asg := newAssignment(len(tpl.Features), len(dets))
	if len(dets) == 0 {
		return asg, nil
	}

	featPts := make([]iface.Point, len(tpl.Features))
	for i, f := range tpl.Features {
		featPts[i] = f.Position
	}
	detPts := make([]iface.Point, len(dets))
	for i, d := range dets {
		detPts[i] = d.Center
	}

	// Recentering needs at least two points on each side to say
	// anything about translation; singleton sets stay in absolute
	// coordinates so a lone far-away detection is out of range rather
	// than trivially on top of the lone feature.
	if len(featPts) > 1 && len(detPts) > 1 {
		featCenter := boundingBoxCenter(featPts)
		detCenter := boundingBoxCenter(detPts)
		for i := range featPts {
			featPts[i] = featPts[i].Sub(featCenter)
		}
		for i := range detPts {
			detPts[i] = detPts[i].Sub(detCenter)
		}
	}

	for i, f := range tpl.Features {
		best := -1
		bestDist := 0.0
		for j := range dets {
			if asg.used[j] || dets[j].ClassID != f.ClassID {
				continue
			}
			dist := featPts[i].Distance(detPts[j])
			if dist > cfg.MaxMatchDistance {
				continue
			}
			// Strict less keeps the first-seen index on equal distance.
			if best < 0 || dist < bestDist {
				best = j
				bestDist = dist
			}
		}
		if best < 0 {
			continue
		}
		asg.used[best] = true
		asg.claims[i] = claim{
			det:  best,
			xErr: math.Abs(featPts[i].X - detPts[best].X),
			yErr: math.Abs(featPts[i].Y - detPts[best].Y),
		}
	}
	return asg, nil
}

func boundingBoxCenter(pts []iface.Point) iface.Point {
	if len(pts) == 0 {
		return iface.Point{}
	}
	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	return iface.Point{X: (minX + maxX) / 2, Y: (minY + maxY) / 2}
}
