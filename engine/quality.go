package engine

import (
	"fmt"
	"os"

	iface "PartInspect/interface"
	"PartInspect/logger"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var knownOperators = map[string]bool{
	"==": true, "<=": true, ">=": true, "<": true, ">": true,
}

// EvaluateRule applies one counting operator. An unrecognized operator
// string is treated as "<=": that fallback is part of the rule
// contract, so counts never silently pass on a typo, they are held to
// the at-most bound instead.
func EvaluateRule(actualCount int, operator string, threshold int) bool {
	switch operator {
	case "==":
		return actualCount == threshold
	case ">=":
		return actualCount >= threshold
	case "<":
		return actualCount < threshold
	case ">":
		return actualCount > threshold
	default:
		return actualCount <= threshold
	}
}

// EvaluatePart applies every standard configured for the part type.
// The part passes iff all rules hold. A part type with no configured
// standards passes only with zero observed defects; that default is
// deliberate, an unconfigured part type does not get a free pass on a
// defective part.
func EvaluatePart(partType string, counts map[string]int, standards iface.QualityStandards) bool {
	rules, ok := standards[partType]
	if !ok || len(rules) == 0 {
		for _, n := range counts {
			if n > 0 {
				return false
			}
		}
		return true
	}
	for _, r := range rules {
		if !EvaluateRule(counts[r.DefectType], r.Operator, r.Threshold) {
			return false
		}
	}
	return true
}

// CountDefects tallies observed defect types from classified
// comparisons. Conforming features do not count; every non-PASSED
// comparison counts once under the feature (or detection) class name,
// falling back to the status when no name is known.
func CountDefects(result iface.InspectionResult) map[string]int {
	counts := make(map[string]int)
	for _, c := range result.Comparisons {
		if c.Status == iface.StatusPassed {
			continue
		}
		key := c.ClassName
		if key == "" {
			key = c.FeatureName
		}
		if key == "" {
			key = string(c.Status)
		}
		counts[key]++
	}
	return counts
}

// LoadStandards reads the partType -> rules mapping from a YAML file.
// Unrecognized operators are kept (the evaluator applies the "<="
// fallback) but logged once at load so the configuration mistake is
// visible.
func LoadStandards(path string) (iface.QualityStandards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quality standards: %w", err)
	}
	standards := iface.QualityStandards{}
	if err := yaml.Unmarshal(data, &standards); err != nil {
		return nil, fmt.Errorf("quality standards: parse %s: %w", path, err)
	}
	for partType, rules := range standards {
		for _, r := range rules {
			if !knownOperators[r.Operator] {
				logger.Log().Warn("unrecognized quality operator, will evaluate as <=",
					zap.String("partType", partType),
					zap.String("defectType", r.DefectType),
					zap.String("operator", r.Operator))
			}
		}
	}
	return standards, nil
}
