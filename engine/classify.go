package engine

import (
	"math"

	iface "PartInspect/interface"
)

// classifyFeature turns one correspondence into a verdict. The errors
// are the per-axis absolute deviations measured by the matcher in its
// working frame; totalError is always the Euclidean combination even
// when the status is decided per axis.
//
//	same class, within tolerance   -> PASSED
//	same class, outside tolerance  -> DEVIATION_EXCEEDED
//	different class (mismatch)     -> TYPE_MISMATCH
func classifyFeature(tpl *iface.Template, cfg MatchConfig, f iface.TemplateFeature, det *iface.DetectedObject, xErr, yErr float64, mismatch bool) iface.FeatureComparison {
	tolX := toleranceX(tpl, cfg, f)
	tolY := toleranceY(tpl, cfg, f)
	pos := det.Center
	cmp := iface.FeatureComparison{
		FeatureID:        f.ID,
		FeatureName:      f.Name,
		ClassID:          f.ClassID,
		ClassName:        det.ClassName,
		TemplatePosition: f.Position,
		DetectedPosition: &pos,
		XError:           xErr,
		YError:           yErr,
		TotalError:       math.Sqrt(xErr*xErr + yErr*yErr),
		ToleranceX:       tolX,
		ToleranceY:       tolY,
		Confidence:       det.Confidence,
	}
	switch {
	case mismatch:
		cmp.Status = iface.StatusTypeMismatch
	case xErr <= tolX && yErr <= tolY:
		cmp.Status = iface.StatusPassed
	default:
		cmp.Status = iface.StatusDeviationExceeded
	}
	return cmp
}

// missingComparison reports a required feature with no candidate.
func missingComparison(tpl *iface.Template, cfg MatchConfig, f iface.TemplateFeature) iface.FeatureComparison {
	return iface.FeatureComparison{
		FeatureID:        f.ID,
		FeatureName:      f.Name,
		ClassID:          f.ClassID,
		TemplatePosition: f.Position,
		ToleranceX:       toleranceX(tpl, cfg, f),
		ToleranceY:       toleranceY(tpl, cfg, f),
		Status:           iface.StatusMissing,
	}
}

// extraComparison reports a detection no template feature claimed.
func extraComparison(det *iface.DetectedObject) iface.FeatureComparison {
	pos := det.Center
	return iface.FeatureComparison{
		FeatureName:      det.ClassName,
		ClassID:          det.ClassID,
		ClassName:        det.ClassName,
		DetectedPosition: &pos,
		Status:           iface.StatusExtra,
		Confidence:       det.Confidence,
	}
}
