package assessments

import "time"

// WorkType classifies the installation environment a job covers.
type WorkType string

const (
	WorkTypeDomestic   WorkType = "domestic"
	WorkTypeCommercial WorkType = "commercial"
	WorkTypeIndustrial WorkType = "industrial"
)

// Valid reports whether the work type is one of the known values.
func (w WorkType) Valid() bool {
	switch w {
	case WorkTypeDomestic, WorkTypeCommercial, WorkTypeIndustrial:
		return true
	default:
		return false
	}
}

// Hazard is a single identified hazard with its risk rating and control.
type Hazard struct {
	Text           string `json:"text"`
	Likelihood     int    `json:"likelihood"`
	Severity       int    `json:"severity"`
	RiskScore      int    `json:"riskScore"`
	ControlMeasure string `json:"controlMeasure"`
	Regulation     string `json:"regulation"`
}

// PPEItem is one piece of personal protective equipment.
type PPEItem struct {
	Type      string `json:"type"`
	Standard  string `json:"standard"`
	Purpose   string `json:"purpose"`
	Mandatory bool   `json:"mandatory"`
}

// ProjectMeta carries the job details printed on the assessment header.
type ProjectMeta struct {
	ProjectName    string    `json:"projectName"`
	Location       string    `json:"location"`
	ClientName     string    `json:"clientName"`
	WorkType       WorkType  `json:"workType"`
	AssessmentDate time.Time `json:"assessmentDate"`
	ReviewDate     time.Time `json:"reviewDate"`
}

// Document is a generated health & safety risk assessment.
// Emergency procedure order is meaningful; steps are numbered on render.
type Document struct {
	ProjectMeta         ProjectMeta `json:"projectMeta"`
	Hazards             []Hazard    `json:"hazards"`
	PPEItems            []PPEItem   `json:"ppeItems"`
	EmergencyProcedures []string    `json:"emergencyProcedures"`
	Notes               string      `json:"notes,omitempty"`
}

// reviewInterval is how long an assessment stays valid before review.
const reviewInterval = 6

// NewProjectMeta stamps project details with assessment and review dates.
func NewProjectMeta(projectName, location, clientName string, workType WorkType, now time.Time) ProjectMeta {
	assessed := now.UTC().Truncate(24 * time.Hour)
	return ProjectMeta{
		ProjectName:    projectName,
		Location:       location,
		ClientName:     clientName,
		WorkType:       workType,
		AssessmentDate: assessed,
		ReviewDate:     assessed.AddDate(0, reviewInterval, 0),
	}
}

// ClampRating forces a likelihood or severity rating into [1,5].
func ClampRating(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// Normalize clamps hazard ratings and derives risk scores. A server-supplied
// score inside the valid product range is preserved as an explicit override.
func (h Hazard) Normalize() Hazard {
	h.Likelihood = ClampRating(h.Likelihood)
	h.Severity = ClampRating(h.Severity)
	if h.RiskScore < 1 || h.RiskScore > 25 {
		h.RiskScore = h.Likelihood * h.Severity
	}
	return h
}

// Normalize returns a copy of the document with ratings clamped, scores
// derived, and nil collections replaced by empty ones.
func (d Document) Normalize() Document {
	hazards := make([]Hazard, len(d.Hazards))
	for i, h := range d.Hazards {
		hazards[i] = h.Normalize()
	}
	d.Hazards = hazards
	if d.PPEItems == nil {
		d.PPEItems = []PPEItem{}
	}
	if d.EmergencyProcedures == nil {
		d.EmergencyProcedures = []string{}
	}
	return d
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Hazards = append([]Hazard(nil), d.Hazards...)
	out.PPEItems = append([]PPEItem(nil), d.PPEItems...)
	out.EmergencyProcedures = append([]string(nil), d.EmergencyProcedures...)
	return out
}
