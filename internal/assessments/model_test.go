package assessments

import (
	"testing"
	"time"
)

func TestHazardNormalizeDerivesScore(t *testing.T) {
	h := Hazard{Text: "working at height", Likelihood: 4, Severity: 3}
	got := h.Normalize()
	if got.RiskScore != 12 {
		t.Fatalf("expected riskScore 12, got %d", got.RiskScore)
	}
}

func TestHazardNormalizeClampsRatings(t *testing.T) {
	h := Hazard{Likelihood: 9, Severity: -2}
	got := h.Normalize()
	if got.Likelihood != 5 {
		t.Fatalf("expected likelihood clamped to 5, got %d", got.Likelihood)
	}
	if got.Severity != 1 {
		t.Fatalf("expected severity clamped to 1, got %d", got.Severity)
	}
	if got.RiskScore != 5 {
		t.Fatalf("expected riskScore 5, got %d", got.RiskScore)
	}
}

func TestHazardNormalizeKeepsValidOverride(t *testing.T) {
	h := Hazard{Likelihood: 2, Severity: 2, RiskScore: 16}
	got := h.Normalize()
	if got.RiskScore != 16 {
		t.Fatalf("expected server override 16 preserved, got %d", got.RiskScore)
	}
}

func TestNewProjectMetaReviewDate(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	meta := NewProjectMeta("Unit 4 rewire", "Leeds", "Acme Ltd", WorkTypeCommercial, now)

	wantAssessed := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !meta.AssessmentDate.Equal(wantAssessed) {
		t.Fatalf("expected assessment date %v, got %v", wantAssessed, meta.AssessmentDate)
	}
	wantReview := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if !meta.ReviewDate.Equal(wantReview) {
		t.Fatalf("expected review date %v, got %v", wantReview, meta.ReviewDate)
	}
}

func TestDocumentCloneIsIndependent(t *testing.T) {
	doc := Document{
		Hazards:             []Hazard{{Text: "live terminals", Likelihood: 3, Severity: 5, RiskScore: 15}},
		PPEItems:            []PPEItem{{Type: "Insulated gloves", Mandatory: true}},
		EmergencyProcedures: []string{"Isolate supply"},
	}
	clone := doc.Clone()
	clone.Hazards[0].Text = "changed"
	clone.EmergencyProcedures[0] = "changed"

	if doc.Hazards[0].Text != "live terminals" {
		t.Fatalf("clone mutation leaked into original hazards")
	}
	if doc.EmergencyProcedures[0] != "Isolate supply" {
		t.Fatalf("clone mutation leaked into original procedures")
	}
}

func TestWorkTypeValid(t *testing.T) {
	for _, w := range []WorkType{WorkTypeDomestic, WorkTypeCommercial, WorkTypeIndustrial} {
		if !w.Valid() {
			t.Fatalf("expected %q valid", w)
		}
	}
	if WorkType("offshore").Valid() {
		t.Fatalf("expected unknown work type invalid")
	}
}
