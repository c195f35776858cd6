// Package pdfrender turns an assessment document into a printable PDF using
// pdfcpu's JSON create API. The full renderer covers every document field;
// the fallback renderer emits the reduced subset used when the remote
// rendering service is unavailable.
package pdfrender

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"assessment-backend/internal/assessments"
)

const (
	pageTopY    = 800.0
	pageBottomY = 60.0
	marginX     = 50.0
	lineHeight  = 14.0
	titleSize   = 16
	headingSize = 11
	bodySize    = 9
)

type line struct {
	text string
	size int
}

// Render produces the full assessment PDF.
func Render(doc assessments.Document) ([]byte, error) {
	lines := []line{
		{"Electrical Risk Assessment", titleSize},
		{"", bodySize},
	}
	lines = append(lines, metaLines(doc.ProjectMeta, "")...)

	lines = append(lines, line{"", bodySize}, line{"Hazards", headingSize})
	for i, h := range doc.Hazards {
		lines = append(lines,
			line{fmt.Sprintf("%d. %s (L%d x S%d = %d)", i+1, h.Text, h.Likelihood, h.Severity, h.RiskScore), bodySize},
			line{"   Control: " + h.ControlMeasure, bodySize},
		)
		if h.Regulation != "" {
			lines = append(lines, line{"   Regulation: " + h.Regulation, bodySize})
		}
	}

	lines = append(lines, line{"", bodySize}, line{"Personal Protective Equipment", headingSize})
	for _, p := range doc.PPEItems {
		requirement := "recommended"
		if p.Mandatory {
			requirement = "mandatory"
		}
		lines = append(lines, line{fmt.Sprintf("- %s (%s, %s): %s", p.Type, p.Standard, requirement, p.Purpose), bodySize})
	}

	lines = append(lines, procedureLines(doc.EmergencyProcedures)...)
	lines = append(lines, notesLines(doc.Notes)...)

	return createPDF(lines)
}

// RenderFallback produces the reduced-field PDF used by the local fallback:
// project name, location, assessor placeholder, date, hazards, PPE type
// list, procedures, and notes.
func RenderFallback(doc assessments.Document, assessor string) ([]byte, error) {
	if strings.TrimSpace(assessor) == "" {
		assessor = "Not recorded"
	}
	lines := []line{
		{"Electrical Risk Assessment", titleSize},
		{"", bodySize},
	}
	lines = append(lines, metaLines(doc.ProjectMeta, assessor)...)

	lines = append(lines, line{"", bodySize}, line{"Hazards", headingSize})
	for i, h := range doc.Hazards {
		lines = append(lines, line{fmt.Sprintf("%d. %s (risk %d): %s", i+1, h.Text, h.RiskScore, h.ControlMeasure), bodySize})
	}

	if len(doc.PPEItems) > 0 {
		types := make([]string, 0, len(doc.PPEItems))
		for _, p := range doc.PPEItems {
			types = append(types, p.Type)
		}
		lines = append(lines, line{"", bodySize}, line{"PPE: " + strings.Join(types, ", "), bodySize})
	}

	lines = append(lines, procedureLines(doc.EmergencyProcedures)...)
	lines = append(lines, notesLines(doc.Notes)...)

	return createPDF(lines)
}

func metaLines(meta assessments.ProjectMeta, assessor string) []line {
	out := []line{}
	if meta.ProjectName != "" {
		out = append(out, line{"Project: " + meta.ProjectName, bodySize})
	}
	if meta.Location != "" {
		out = append(out, line{"Location: " + meta.Location, bodySize})
	}
	if meta.ClientName != "" {
		out = append(out, line{"Client: " + meta.ClientName, bodySize})
	}
	if meta.WorkType != "" {
		out = append(out, line{"Work type: " + string(meta.WorkType), bodySize})
	}
	if assessor != "" {
		out = append(out, line{"Assessor: " + assessor, bodySize})
	}
	if !meta.AssessmentDate.IsZero() {
		out = append(out, line{"Assessment date: " + meta.AssessmentDate.Format("2006-01-02"), bodySize})
	}
	if !meta.ReviewDate.IsZero() {
		out = append(out, line{"Review date: " + meta.ReviewDate.Format("2006-01-02"), bodySize})
	}
	return out
}

func procedureLines(procedures []string) []line {
	if len(procedures) == 0 {
		return nil
	}
	out := []line{{"", bodySize}, {"Emergency Procedures", headingSize}}
	for i, p := range procedures {
		out = append(out, line{fmt.Sprintf("%d. %s", i+1, p), bodySize})
	}
	return out
}

func notesLines(notes string) []line {
	if strings.TrimSpace(notes) == "" {
		return nil
	}
	return []line{{"", bodySize}, {"Notes", headingSize}, {notes, bodySize}}
}

// createPDF lays the lines out top-down across as many pages as needed and
// feeds the resulting description to pdfcpu.
func createPDF(lines []line) ([]byte, error) {
	pages := map[string]any{}
	pageNum := 1
	y := pageTopY
	var texts []map[string]any

	flush := func() {
		if len(texts) == 0 {
			return
		}
		pages[fmt.Sprintf("%d", pageNum)] = map[string]any{
			"content": map[string]any{"text": texts},
		}
		pageNum++
		texts = nil
		y = pageTopY
	}

	for _, l := range lines {
		if l.text == "" {
			y -= lineHeight / 2
			continue
		}
		if y < pageBottomY {
			flush()
		}
		texts = append(texts, map[string]any{
			"value": l.text,
			"pos":   []float64{marginX, y},
			"font":  map[string]any{"name": "Helvetica", "size": l.size},
		})
		y -= lineHeight
		if l.size > bodySize {
			y -= lineHeight / 2
		}
	}
	flush()

	spec, err := json.Marshal(map[string]any{
		"paper": "A4",
		"pages": pages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal pdf spec: %w", err)
	}

	var buf bytes.Buffer
	conf := model.NewDefaultConfiguration()
	if err := api.Create(nil, bytes.NewReader(spec), &buf, conf); err != nil {
		return nil, fmt.Errorf("pdfcpu create: %w", err)
	}
	return buf.Bytes(), nil
}
