// Package exporter turns the draft document into things that leave the
// application: clipboard JSON and downloaded PDFs.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/client"
	"assessment-backend/internal/export"
	"assessment-backend/internal/pdfrender"
	"assessment-backend/internal/shared/telemetry"
)

// Renderer is the remote PDF surface the exporter talks to.
type Renderer interface {
	GeneratePDF(ctx context.Context, doc assessments.Document) (client.PDFResult, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Exporter writes PDFs into DownloadDir. Now is overridable for tests.
type Exporter struct {
	Backend     Renderer
	DownloadDir string
	Now         func() time.Time
}

// Outcome reports where the PDF landed and which path produced it.
type Outcome struct {
	Path         string
	FileName     string
	UsedFallback bool
}

// CopyJSON places the document on the system clipboard as pretty-printed
// JSON.
func (e *Exporter) CopyJSON(doc assessments.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}
	if err := clipboard.WriteAll(string(data)); err != nil {
		return fmt.Errorf("clipboard unavailable: %w", err)
	}
	return nil
}

// ExportPDF asks the remote renderer first and falls back to the local
// reduced-field renderer when the backend signals fallback. Exactly one
// outcome or error is returned per call; the caller resolves its loading
// state on either.
func (e *Exporter) ExportPDF(ctx context.Context, doc assessments.Document) (Outcome, error) {
	result, err := e.Backend.GeneratePDF(ctx, doc)
	if err != nil {
		return Outcome{}, fmt.Errorf("generate pdf: %w", err)
	}

	if result.UseFallback {
		telemetry.Info("export.fallback", map[string]any{"message": result.Message})
		pdf, err := pdfrender.RenderFallback(doc, "")
		if err != nil {
			return Outcome{}, fmt.Errorf("fallback render: %w", err)
		}
		return e.write(doc, pdf, "", true)
	}

	if !result.Success || result.DownloadURL == "" {
		return Outcome{}, fmt.Errorf("generate pdf: backend returned neither success nor fallback")
	}

	pdf, err := e.Backend.Download(ctx, result.DownloadURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("download pdf: %w", err)
	}
	return e.write(doc, pdf, result.FileName, false)
}

func (e *Exporter) write(doc assessments.Document, pdf []byte, fileName string, fallback bool) (Outcome, error) {
	if fileName == "" {
		fileName = export.FileName(doc.ProjectMeta.ProjectName, e.now())
	}
	dir := e.DownloadDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("creating download dir: %w", err)
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return Outcome{}, fmt.Errorf("writing pdf: %w", err)
	}
	return Outcome{Path: path, FileName: fileName, UsedFallback: fallback}, nil
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
