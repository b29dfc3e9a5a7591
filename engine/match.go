package engine

import (
	"fmt"
	"time"

	iface "PartInspect/interface"
)

// InputError reports malformed inspection input: an unusable template
// or point sets that cannot be corresponded. It is a caller-facing
// failure, never produced for the expected "nothing detected" case.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "input: " + e.Reason
}

// ConfigError reports a configuration that must be rejected at load
// time, such as an unknown match strategy.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// Strategy selects the correspondence algorithm.
type Strategy int

const (
	StrategyDirect Strategy = iota + 1
	StrategyRotationInvariant
	StrategyTransformNormalized
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "COORDINATE"
	case StrategyRotationInvariant:
		return "TOPOLOGY"
	case StrategyTransformNormalized:
		return "CROP_AREA"
	}
	return "UNKNOWN"
}

// ParseStrategy maps a configured strategy name onto a matcher.
// TOPOLOGY and CROSS_RATIO both dispatch to the rotation-invariant
// matcher, which is the surviving implementation of that family.
// Unknown names fail closed; there is no default strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "COORDINATE":
		return StrategyDirect, nil
	case "TOPOLOGY", "CROSS_RATIO":
		return StrategyRotationInvariant, nil
	case "CROP_AREA":
		return StrategyTransformNormalized, nil
	}
	return 0, &ConfigError{Reason: fmt.Sprintf("unknown match strategy %q", name)}
}

// DefaultTypeMismatchRatio is the fraction of MaxMatchDistance within
// which a different-class candidate is reported as TYPE_MISMATCH
// instead of leaving the feature MISSING. Tunable, not a domain law.
const DefaultTypeMismatchRatio = 0.8

// MatchConfig is the per-inspection configuration surface.
type MatchConfig struct {
	Strategy          Strategy
	MaxMatchDistance  float64
	TreatExtraAsError bool
	// Tolerance defaults used when neither the feature nor the
	// template carries one.
	ToleranceX float64
	ToleranceY float64
	// TypeMismatchRatio defaults to DefaultTypeMismatchRatio when 0.
	TypeMismatchRatio float64
}

func (c MatchConfig) mismatchRatio() float64 {
	if c.TypeMismatchRatio > 0 {
		return c.TypeMismatchRatio
	}
	return DefaultTypeMismatchRatio
}

// Validate rejects configurations that must not reach evaluation.
func (c MatchConfig) Validate() error {
	switch c.Strategy {
	case StrategyDirect, StrategyRotationInvariant, StrategyTransformNormalized:
	default:
		return &ConfigError{Reason: "match strategy not set"}
	}
	if c.MaxMatchDistance <= 0 {
		return &ConfigError{Reason: "maxMatchDistance must be positive"}
	}
	return nil
}

// claim records one feature-to-detection pairing produced by a
// matcher, with positional errors measured in the matcher's working
// frame.
type claim struct {
	det      int
	mismatch bool
	xErr     float64
	yErr     float64
}

// assignment is a one-to-one pairing: claims maps feature index to its
// claim, used marks detection indices already claimed.
type assignment struct {
	claims map[int]claim
	used   []bool
}

func newAssignment(featureCount, detCount int) assignment {
	return assignment{
		claims: make(map[int]claim, featureCount),
		used:   make([]bool, detCount),
	}
}

type matchFunc func(tpl *iface.Template, dets []iface.DetectedObject, cfg MatchConfig) (assignment, error)

var matchers = map[Strategy]matchFunc{
	StrategyDirect:              matchDirect,
	StrategyRotationInvariant:   matchRotationInvariant,
	StrategyTransformNormalized: matchTransformNormalized,
}

// Match runs one inspection: pair detections to template features with
// the configured strategy, classify each feature, and aggregate the
// verdict. A template that cannot be inspected at all yields a failed
// result alongside the error; it never silently passes. An empty
// detection list is an expected outcome and resolves to MISSING
// classifications, not an error.
func Match(tpl *iface.Template, dets []iface.DetectedObject, cfg MatchConfig) (iface.InspectionResult, error) {
	start := time.Now()
	result := iface.InspectionResult{Passed: false}
	if tpl != nil {
		result.TemplateID = tpl.ID
	}

	if err := cfg.Validate(); err != nil {
		result.Message = err.Error()
		return result, err
	}
	if tpl == nil || len(tpl.Features) == 0 {
		err := &InputError{Reason: "template has no features"}
		result.Message = err.Error()
		return result, err
	}

	fn := matchers[cfg.Strategy]
	asg, err := fn(tpl, dets, cfg)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}

	result.Comparisons = assembleComparisons(tpl, dets, cfg, asg)
	result.Passed = true
	matched := 0
	for _, c := range result.Comparisons {
		if c.Status != iface.StatusPassed {
			result.Passed = false
		} else {
			matched++
		}
	}
	result.Message = fmt.Sprintf("strategy %s: %d/%d comparisons passed",
		cfg.Strategy, matched, len(result.Comparisons))
	result.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return result, nil
}

// assembleComparisons builds the comparison list in template feature
// order, then appends EXTRA entries for unclaimed detections when the
// caller opted in. Unclaimed detections are otherwise dropped from the
// result, since unannotated detector noise should not fail a part by
// default.
func assembleComparisons(tpl *iface.Template, dets []iface.DetectedObject, cfg MatchConfig, asg assignment) []iface.FeatureComparison {
	comparisons := make([]iface.FeatureComparison, 0, len(tpl.Features))
	for i, f := range tpl.Features {
		cl, ok := asg.claims[i]
		if !ok {
			if !f.Required {
				continue
			}
			comparisons = append(comparisons, missingComparison(tpl, cfg, f))
			continue
		}
		det := dets[cl.det]
		comparisons = append(comparisons, classifyFeature(tpl, cfg, f, &det, cl.xErr, cl.yErr, cl.mismatch))
	}
	if cfg.TreatExtraAsError {
		for i, det := range dets {
			if asg.used[i] {
				continue
			}
			comparisons = append(comparisons, extraComparison(&det))
		}
	}
	return comparisons
}

func toleranceX(tpl *iface.Template, cfg MatchConfig, f iface.TemplateFeature) float64 {
	if v := tpl.FeatureToleranceX(f); v > 0 {
		return v
	}
	return cfg.ToleranceX
}

func toleranceY(tpl *iface.Template, cfg MatchConfig, f iface.TemplateFeature) float64 {
	if v := tpl.FeatureToleranceY(f); v > 0 {
		return v
	}
	return cfg.ToleranceY
}
