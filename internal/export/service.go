package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/pdfrender"
	"assessment-backend/internal/shared/storage/object"
	"assessment-backend/internal/shared/telemetry"
	"assessment-backend/internal/shared/util"
)

// ErrRendererUnavailable signals that the caller should fall back to a local
// renderer instead of retrying the remote one.
var ErrRendererUnavailable = errors.New("pdf renderer unavailable")

// ErrNotFound indicates an unknown export key.
var ErrNotFound = errors.New("export not found")

// Service renders assessment PDFs and stores them for download.
type Service struct {
	Store object.ObjectStore
}

// Rendered describes a stored PDF ready for download.
type Rendered struct {
	Key      string
	FileName string
	Size     int64
}

// Render renders the document to PDF and stores it under an opaque key.
// When no object store is configured the caller gets ErrRendererUnavailable
// so it can use its local fallback.
func (s *Service) Render(ctx context.Context, doc assessments.Document) (Rendered, error) {
	if s.Store == nil {
		return Rendered{}, ErrRendererUnavailable
	}

	data, err := pdfrender.Render(doc)
	if err != nil {
		return Rendered{}, fmt.Errorf("render pdf: %w", err)
	}

	fileName := FileName(doc.ProjectMeta.ProjectName, time.Now())
	key := "exports/" + uuid.NewString() + ".pdf"
	size, err := s.Store.SaveWithKey(ctx, key, "application/pdf", bytes.NewReader(data))
	if err != nil {
		return Rendered{}, fmt.Errorf("store pdf: %w", err)
	}

	telemetry.Info("export.rendered", map[string]any{
		"key":       key,
		"file_name": fileName,
		"bytes":     size,
	})
	return Rendered{Key: key, FileName: fileName, Size: size}, nil
}

// Open streams a previously rendered PDF.
func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.Store == nil {
		return nil, ErrNotFound
	}
	if !strings.HasPrefix(key, "exports/") {
		return nil, ErrNotFound
	}
	if _, err := util.SanitizeFileName(strings.TrimPrefix(key, "exports/")); err != nil {
		return nil, ErrNotFound
	}
	rc, err := s.Store.Open(ctx, key)
	if err != nil {
		return nil, ErrNotFound
	}
	return rc, nil
}

var fileNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName builds the download name: RiskAssessment-{project}-{ISO date}.pdf.
// A missing project name falls back to "Assessment".
func FileName(projectName string, now time.Time) string {
	name := strings.TrimSpace(projectName)
	if name == "" {
		name = "Assessment"
	}
	name = fileNameUnsafe.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "Assessment"
	}
	return fmt.Sprintf("RiskAssessment-%s-%s.pdf", name, now.UTC().Format("2006-01-02"))
}
