package engine

import (
	"math"
	"testing"

	iface "PartInspect/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleFeatureTemplate() *iface.Template {
	return &iface.Template{
		ID: "tpl-1",
		Features: []iface.TemplateFeature{
			{ID: "f1", Name: "hole", ClassID: 0, Position: iface.Point{X: 100, Y: 100}, ToleranceX: 5, ToleranceY: 5, Required: true},
		},
	}
}

func directConfig() MatchConfig {
	return MatchConfig{
		Strategy:         StrategyDirect,
		MaxMatchDistance: 50,
	}
}

func TestMatchWithinTolerance(t *testing.T) {
	dets := []iface.DetectedObject{
		{ClassID: 0, Center: iface.Point{X: 102, Y: 103}, Confidence: 0.95},
	}
	result, err := Match(singleFeatureTemplate(), dets, directConfig())
	require.NoError(t, err)
	require.Len(t, result.Comparisons, 1)

	cmp := result.Comparisons[0]
	assert.Equal(t, iface.StatusPassed, cmp.Status)
	assert.InDelta(t, 2, cmp.XError, 1e-9)
	assert.InDelta(t, 3, cmp.YError, 1e-9)
	assert.InDelta(t, math.Sqrt(13), cmp.TotalError, 1e-9)
	assert.True(t, result.Passed)
}

func TestMatchOutOfRangeIsMissingPlusExtra(t *testing.T) {
	dets := []iface.DetectedObject{
		{ClassID: 0, Center: iface.Point{X: 200, Y: 200}, Confidence: 0.9},
	}

	cfg := directConfig()
	result, err := Match(singleFeatureTemplate(), dets, cfg)
	require.NoError(t, err)
	require.Len(t, result.Comparisons, 1)
	assert.Equal(t, iface.StatusMissing, result.Comparisons[0].Status)
	assert.False(t, result.Passed)

	cfg.TreatExtraAsError = true
	result, err = Match(singleFeatureTemplate(), dets, cfg)
	require.NoError(t, err)
	require.Len(t, result.Comparisons, 2)
	assert.Equal(t, iface.StatusMissing, result.Comparisons[0].Status)
	assert.Equal(t, iface.StatusExtra, result.Comparisons[1].Status)
}

func TestMatchToleranceBoundary(t *testing.T) {
	// Exactly at tolerance on both axes passes; one unit beyond on
	// either axis does not.
	at := []iface.DetectedObject{{ClassID: 0, Center: iface.Point{X: 105, Y: 105}}}
	result, err := Match(singleFeatureTemplate(), at, directConfig())
	require.NoError(t, err)
	assert.Equal(t, iface.StatusPassed, result.Comparisons[0].Status)

	beyond := []iface.DetectedObject{{ClassID: 0, Center: iface.Point{X: 106, Y: 105}}}
	result, err = Match(singleFeatureTemplate(), beyond, directConfig())
	require.NoError(t, err)
	assert.Equal(t, iface.StatusDeviationExceeded, result.Comparisons[0].Status)
}

func TestMatchOneToOneClaims(t *testing.T) {
	tpl := &iface.Template{
		ID: "tpl-2",
		Features: []iface.TemplateFeature{
			{ID: "f1", ClassID: 0, Position: iface.Point{X: 100, Y: 100}, ToleranceX: 5, ToleranceY: 5, Required: true},
			{ID: "f2", ClassID: 0, Position: iface.Point{X: 104, Y: 100}, ToleranceX: 5, ToleranceY: 5, Required: true},
		},
	}
	dets := []iface.DetectedObject{
		{ClassID: 0, Center: iface.Point{X: 101, Y: 100}},
	}
	result, err := Match(tpl, dets, directConfig())
	require.NoError(t, err)
	require.Len(t, result.Comparisons, 2)

	claimed := 0
	for _, cmp := range result.Comparisons {
		if cmp.Status != iface.StatusMissing {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed, "one detection can satisfy only one feature")
}

func TestMatchTieBreakFirstIndexWins(t *testing.T) {
	dets := []iface.DetectedObject{
		{ClassID: 0, Center: iface.Point{X: 103, Y: 100}, Confidence: 0.4},
		{ClassID: 0, Center: iface.Point{X: 97, Y: 100}, Confidence: 0.9},
	}
	result, err := Match(singleFeatureTemplate(), dets, directConfig())
	require.NoError(t, err)
	require.Len(t, result.Comparisons, 1)
	// Equal distance: the earlier detection index is claimed.
	assert.InDelta(t, 0.4, result.Comparisons[0].Confidence, 1e-9)
}

func TestMatchOptionalFeatureOmitted(t *testing.T) {
	tpl := &iface.Template{
		ID: "tpl-3",
		Features: []iface.TemplateFeature{
			{ID: "f1", ClassID: 0, Position: iface.Point{X: 100, Y: 100}, ToleranceX: 5, ToleranceY: 5, Required: true},
			{ID: "f2", ClassID: 1, Position: iface.Point{X: 300, Y: 300}, ToleranceX: 5, ToleranceY: 5, Required: false},
		},
	}
	dets := []iface.DetectedObject{
		{ClassID: 0, Center: iface.Point{X: 100, Y: 100}},
	}
	result, err := Match(tpl, dets, directConfig())
	require.NoError(t, err)
	// The optional unmatched feature leaves no comparison behind.
	require.Len(t, result.Comparisons, 1)
	assert.Equal(t, "f1", result.Comparisons[0].FeatureID)
	assert.True(t, result.Passed)
}

func TestMatchNothingDetected(t *testing.T) {
	result, err := Match(singleFeatureTemplate(), nil, directConfig())
	require.NoError(t, err, "nothing detected is an expected outcome, not an error")
	require.Len(t, result.Comparisons, 1)
	assert.Equal(t, iface.StatusMissing, result.Comparisons[0].Status)
	assert.False(t, result.Passed)
}

func TestMatchEmptyTemplateFailsLoudly(t *testing.T) {
	result, err := Match(&iface.Template{ID: "empty"}, nil, directConfig())
	require.Error(t, err)
	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.Message)
}

func TestMatchInvalidConfigRejected(t *testing.T) {
	_, err := Match(singleFeatureTemplate(), nil, MatchConfig{Strategy: StrategyDirect})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMatchDeterministic(t *testing.T) {
	tpl := &iface.Template{
		ID: "tpl-det",
		Features: []iface.TemplateFeature{
			{ID: "a", ClassID: 0, Position: iface.Point{X: 100, Y: 100}, ToleranceX: 5, ToleranceY: 5, Required: true},
			{ID: "b", ClassID: 0, Position: iface.Point{X: 200, Y: 100}, ToleranceX: 5, ToleranceY: 5, Required: true},
			{ID: "c", ClassID: 1, Position: iface.Point{X: 150, Y: 200}, ToleranceX: 5, ToleranceY: 5, Required: true},
		},
	}
	dets := []iface.DetectedObject{
		{ClassID: 0, Center: iface.Point{X: 101, Y: 99}},
		{ClassID: 0, Center: iface.Point{X: 201, Y: 101}},
		{ClassID: 1, Center: iface.Point{X: 150, Y: 203}},
		{ClassID: 1, Center: iface.Point{X: 400, Y: 400}},
	}
	cfg := directConfig()
	cfg.TreatExtraAsError = true

	first, err := Match(tpl, dets, cfg)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Match(tpl, dets, cfg)
		require.NoError(t, err)
		assert.Equal(t, first.Comparisons, again.Comparisons)
		assert.Equal(t, first.Passed, again.Passed)
	}
}

func TestRotationInvariantTypeMismatch(t *testing.T) {
	dets := []iface.DetectedObject{
		{ClassID: 1, ClassName: "scratch", Center: iface.Point{X: 100, Y: 100}, Confidence: 0.8},
	}
	cfg := MatchConfig{
		Strategy:         StrategyRotationInvariant,
		MaxMatchDistance: 50,
	}
	result, err := Match(singleFeatureTemplate(), dets, cfg)
	require.NoError(t, err)
	require.Len(t, result.Comparisons, 1)
	assert.Equal(t, iface.StatusTypeMismatch, result.Comparisons[0].Status)
	assert.False(t, result.Passed)
}

func TestRotationInvariantSurvivesSmallRotation(t *testing.T) {
	tpl := &iface.Template{
		ID: "tpl-rot",
		Features: []iface.TemplateFeature{
			{ID: "f1", ClassID: 0, Position: iface.Point{X: 100, Y: 100}, ToleranceX: 5, ToleranceY: 5, Required: true},
			{ID: "f2", ClassID: 0, Position: iface.Point{X: 200, Y: 100}, ToleranceX: 5, ToleranceY: 5, Required: true},
			{ID: "f3", ClassID: 0, Position: iface.Point{X: 200, Y: 200}, ToleranceX: 5, ToleranceY: 5, Required: true},
			{ID: "f4", ClassID: 0, Position: iface.Point{X: 100, Y: 200}, ToleranceX: 5, ToleranceY: 5, Required: true},
		},
	}

	// Rotate the whole part by 2 degrees about its centroid and shift
	// it; centroid distances are unchanged, relative errors are small.
	theta := 2 * math.Pi / 180
	centroid := iface.Point{X: 150, Y: 150}
	shift := iface.Point{X: 30, Y: -12}
	var dets []iface.DetectedObject
	for _, f := range tpl.Features {
		rel := f.Position.Sub(centroid)
		rot := iface.Point{
			X: rel.X*math.Cos(theta) - rel.Y*math.Sin(theta),
			Y: rel.X*math.Sin(theta) + rel.Y*math.Cos(theta),
		}
		dets = append(dets, iface.DetectedObject{
			ClassID: 0,
			Center:  centroid.Add(rot).Add(shift),
		})
	}

	cfg := MatchConfig{
		Strategy:         StrategyRotationInvariant,
		MaxMatchDistance: 50,
	}
	result, err := Match(tpl, dets, cfg)
	require.NoError(t, err)
	assert.True(t, result.Passed, "message: %s", result.Message)
	for _, cmp := range result.Comparisons {
		assert.Equal(t, iface.StatusPassed, cmp.Status)
	}
}

func TestRotationInvariantTopologyThresholdOverride(t *testing.T) {
	tpl := &iface.Template{
		ID: "tpl-topo",
		Features: []iface.TemplateFeature{
			{ID: "f1", ClassID: 0, Position: iface.Point{X: 0, Y: 0}, ToleranceX: 20, ToleranceY: 20, Required: true},
			{ID: "f2", ClassID: 0, Position: iface.Point{X: 100, Y: 0}, ToleranceX: 20, ToleranceY: 20, Required: true},
		},
	}
	// Detections stretched apart: centroid radii 65 vs the template's
	// 50, a difference of 15.
	dets := []iface.DetectedObject{
		{ClassID: 0, Center: iface.Point{X: 0, Y: 0}, Confidence: 0.9},
		{ClassID: 0, Center: iface.Point{X: 130, Y: 0}, Confidence: 0.9},
	}
	cfg := MatchConfig{
		Strategy:         StrategyRotationInvariant,
		MaxMatchDistance: 50,
	}

	result, err := Match(tpl, dets, cfg)
	require.NoError(t, err)
	assert.True(t, result.Passed, "message: %s", result.Message)

	// A tighter per-template radius window rejects the same pairing.
	tpl.Topology.SimilarityThreshold = 10
	result, err = Match(tpl, dets, cfg)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	for _, cmp := range result.Comparisons {
		assert.Equal(t, iface.StatusMissing, cmp.Status)
	}
}

func TestTransformNormalizedAlignsRotatedPart(t *testing.T) {
	tpl := &iface.Template{
		ID: "tpl-norm",
		Features: []iface.TemplateFeature{
			{ID: "f1", ClassID: 0, Position: iface.Point{X: 100, Y: 100}, ToleranceX: 3, ToleranceY: 3, Required: true},
			{ID: "f2", ClassID: 0, Position: iface.Point{X: 250, Y: 120}, ToleranceX: 3, ToleranceY: 3, Required: true},
			{ID: "f3", ClassID: 0, Position: iface.Point{X: 180, Y: 260}, ToleranceX: 3, ToleranceY: 3, Required: true},
			{ID: "f4", ClassID: 1, Position: iface.Point{X: 120, Y: 220}, ToleranceX: 3, ToleranceY: 3, Required: true},
		},
	}

	// Detections are the template under a known rigid transform:
	// rotated 30 degrees and translated, far too much for the direct
	// matcher, recoverable after normalization.
	sim := Similarity{Theta: 30 * math.Pi / 180, Scale: 1, TX: 40, TY: -20}
	var dets []iface.DetectedObject
	for _, f := range tpl.Features {
		dets = append(dets, iface.DetectedObject{
			ClassID: f.ClassID,
			Center:  sim.Apply(f.Position),
		})
	}

	cfg := MatchConfig{
		Strategy:         StrategyTransformNormalized,
		MaxMatchDistance: 50,
	}
	result, err := Match(tpl, dets, cfg)
	require.NoError(t, err)
	assert.True(t, result.Passed, "message: %s", result.Message)
	for _, cmp := range result.Comparisons {
		assert.Equal(t, iface.StatusPassed, cmp.Status)
		assert.Less(t, cmp.TotalError, 1e-6)
	}
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]Strategy{
		"COORDINATE":  StrategyDirect,
		"TOPOLOGY":    StrategyRotationInvariant,
		"CROSS_RATIO": StrategyRotationInvariant,
		"CROP_AREA":   StrategyTransformNormalized,
	}
	for name, want := range cases {
		got, err := ParseStrategy(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseStrategy("NEAREST")
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
