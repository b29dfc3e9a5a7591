package iface

// ComparisonStatus classifies one template feature against what the
// detector reported at its expected location.
type ComparisonStatus string

const (
	StatusPassed            ComparisonStatus = "PASSED"
	StatusDeviationExceeded ComparisonStatus = "DEVIATION_EXCEEDED"
	StatusMissing           ComparisonStatus = "MISSING"
	StatusExtra             ComparisonStatus = "EXTRA"
	StatusTypeMismatch      ComparisonStatus = "TYPE_MISMATCH"
)

// FeatureComparison is the per-feature verdict. PASSED requires the
// per-axis errors to be within tolerance; every other status is
// mutually exclusive with it.
type FeatureComparison struct {
	FeatureID        string           `json:"featureId"`
	FeatureName      string           `json:"featureName"`
	ClassID          int              `json:"classId"`
	ClassName        string           `json:"className,omitempty"`
	TemplatePosition Point            `json:"templatePosition"`
	DetectedPosition *Point           `json:"detectedPosition,omitempty"`
	XError           float64          `json:"xError"`
	YError           float64          `json:"yError"`
	TotalError       float64          `json:"totalError"`
	ToleranceX       float64          `json:"toleranceX"`
	ToleranceY       float64          `json:"toleranceY"`
	Status           ComparisonStatus `json:"status"`
	Confidence       float64          `json:"confidence"`
}

// InspectionResult is the outcome of one match() call. Passed is true
// iff every comparison is PASSED.
type InspectionResult struct {
	TemplateID       string              `json:"templateId"`
	Passed           bool                `json:"passed"`
	Comparisons      []FeatureComparison `json:"comparisons"`
	ProcessingTimeMs float64             `json:"processingTimeMs"`
	Message          string              `json:"message,omitempty"`
}

// QualityRule is one counting rule over a defect type for a part type.
type QualityRule struct {
	DefectType string `json:"defectType" yaml:"defectType"`
	Operator   string `json:"operator" yaml:"operator"`
	Threshold  int    `json:"threshold" yaml:"threshold"`
}

// QualityStandards maps part type to its counting rules. Read-only at
// evaluation time.
type QualityStandards map[string][]QualityRule
