package iface

// TemplateFeature is one expected feature location within a template.
type TemplateFeature struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	ClassID    int     `json:"classId" yaml:"classId"`
	Position   Point   `json:"position" yaml:"position"`
	Relative   *Point  `json:"relativePosition,omitempty" yaml:"relativePosition,omitempty"`
	ToleranceX float64 `json:"toleranceX" yaml:"toleranceX"`
	ToleranceY float64 `json:"toleranceY" yaml:"toleranceY"`
	Required   bool    `json:"required" yaml:"required"`
}

// RelativeTo returns the feature position relative to the given
// centroid, preferring the precomputed value when present.
func (f TemplateFeature) RelativeTo(centroid Point) Point {
	if f.Relative != nil {
		return *f.Relative
	}
	return f.Position.Sub(centroid)
}

// TopologyParams tunes the rotation-invariant matcher family.
type TopologyParams struct {
	KNearest            int     `json:"kNearest" yaml:"kNearest"`
	SimilarityThreshold float64 `json:"similarityThreshold" yaml:"similarityThreshold"`
}

// Rect is an axis-aligned min/max rectangle.
type Rect struct {
	MinX float64 `json:"minX" yaml:"minX"`
	MinY float64 `json:"minY" yaml:"minY"`
	MaxX float64 `json:"maxX" yaml:"maxX"`
	MaxY float64 `json:"maxY" yaml:"maxY"`
}

func (r Rect) Center() Point {
	return Point{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// Template is the canonical geometric description of an expected
// conforming part. Immutable during an inspection call; replaced as a
// whole on update.
type Template struct {
	ID               string            `json:"id" yaml:"id"`
	Features         []TemplateFeature `json:"features" yaml:"features"`
	BoundingBox      *Rect             `json:"boundingBox,omitempty" yaml:"boundingBox,omitempty"`
	GlobalToleranceX float64           `json:"globalToleranceX" yaml:"globalToleranceX"`
	GlobalToleranceY float64           `json:"globalToleranceY" yaml:"globalToleranceY"`
	PartType         string            `json:"partType,omitempty" yaml:"partType,omitempty"`
	Topology         TopologyParams    `json:"topologyParams" yaml:"topologyParams"`
}

// Centroid is the mean of all feature positions. Zero-feature
// templates are rejected before matching, so the zero value here is
// only returned defensively.
func (t *Template) Centroid() Point {
	if len(t.Features) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, f := range t.Features {
		sx += f.Position.X
		sy += f.Position.Y
	}
	n := float64(len(t.Features))
	return Point{X: sx / n, Y: sy / n}
}

// FeatureToleranceX returns the per-feature tolerance, falling back to
// the template-wide default when the feature carries none.
func (t *Template) FeatureToleranceX(f TemplateFeature) float64 {
	if f.ToleranceX > 0 {
		return f.ToleranceX
	}
	return t.GlobalToleranceX
}

func (t *Template) FeatureToleranceY(f TemplateFeature) float64 {
	if f.ToleranceY > 0 {
		return f.ToleranceY
	}
	return t.GlobalToleranceY
}
