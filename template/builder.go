package template

import (
	"fmt"
	"math"

	iface "PartInspect/interface"
)

// relativeEpsilon bounds how far a stored relativePosition may sit
// from the value derived from position and centroid before the
// template is rejected as internally inconsistent.
const relativeEpsilon = 1e-6

// Builder assembles a Template from manual annotations or detector
// output and normalizes it on Build. The built template is immutable
// from the engine's point of view.
type Builder struct {
	tpl iface.Template
}

func NewBuilder(id string) *Builder {
	return &Builder{tpl: iface.Template{ID: id}}
}

func (b *Builder) PartType(partType string) *Builder {
	b.tpl.PartType = partType
	return b
}

func (b *Builder) GlobalTolerance(x, y float64) *Builder {
	b.tpl.GlobalToleranceX = x
	b.tpl.GlobalToleranceY = y
	return b
}

func (b *Builder) Topology(p iface.TopologyParams) *Builder {
	b.tpl.Topology = p
	return b
}

// Feature adds one manually annotated feature.
func (b *Builder) Feature(f iface.TemplateFeature) *Builder {
	b.tpl.Features = append(b.tpl.Features, f)
	return b
}

// FromDetections seeds the feature list from detector output, the way
// a golden-sample part is turned into a template. Feature IDs are
// positional; tolerances fall back to the global defaults.
func (b *Builder) FromDetections(dets []iface.DetectedObject, required bool) *Builder {
	for i, d := range dets {
		name := d.ClassName
		if name == "" {
			name = fmt.Sprintf("class%d", d.ClassID)
		}
		b.tpl.Features = append(b.tpl.Features, iface.TemplateFeature{
			ID:       fmt.Sprintf("f%03d", i),
			Name:     name,
			ClassID:  d.ClassID,
			Position: d.Center,
			Required: required,
		})
	}
	return b
}

// Build validates and normalizes the template: feature IDs must be
// unique, tolerances non-negative, and every feature gets its
// centroid-relative position computed. A stored relative position
// that diverges from the derived one is an error, the two must never
// drift apart silently.
func (b *Builder) Build() (*iface.Template, error) {
	tpl := b.tpl
	if tpl.ID == "" {
		return nil, fmt.Errorf("template: id is empty")
	}
	if len(tpl.Features) == 0 {
		return nil, fmt.Errorf("template %s: no features", tpl.ID)
	}

	seen := make(map[string]bool, len(tpl.Features))
	for _, f := range tpl.Features {
		if f.ID == "" {
			return nil, fmt.Errorf("template %s: feature with empty id", tpl.ID)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("template %s: duplicate feature id %s", tpl.ID, f.ID)
		}
		seen[f.ID] = true
		if f.ToleranceX < 0 || f.ToleranceY < 0 {
			return nil, fmt.Errorf("template %s: feature %s has negative tolerance", tpl.ID, f.ID)
		}
	}

	// Deep-copy features so the builder cannot alias the built value.
	features := make([]iface.TemplateFeature, len(tpl.Features))
	copy(features, tpl.Features)
	tpl.Features = features

	centroid := tpl.Centroid()
	for i := range tpl.Features {
		derived := tpl.Features[i].Position.Sub(centroid)
		if rel := tpl.Features[i].Relative; rel != nil {
			if math.Abs(rel.X-derived.X) > relativeEpsilon || math.Abs(rel.Y-derived.Y) > relativeEpsilon {
				return nil, fmt.Errorf("template %s: feature %s relativePosition diverges from position-centroid",
					tpl.ID, tpl.Features[i].ID)
			}
		}
		d := derived
		tpl.Features[i].Relative = &d
	}

	if tpl.BoundingBox == nil {
		bb := featureBounds(tpl.Features)
		tpl.BoundingBox = &bb
	}
	return &tpl, nil
}

func featureBounds(features []iface.TemplateFeature) iface.Rect {
	r := iface.Rect{
		MinX: features[0].Position.X, MaxX: features[0].Position.X,
		MinY: features[0].Position.Y, MaxY: features[0].Position.Y,
	}
	for _, f := range features[1:] {
		r.MinX = min(r.MinX, f.Position.X)
		r.MaxX = max(r.MaxX, f.Position.X)
		r.MinY = min(r.MinY, f.Position.Y)
		r.MaxY = max(r.MaxY, f.Position.Y)
	}
	return r
}
