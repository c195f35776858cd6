package export

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	localstore "assessment-backend/internal/shared/storage/object/local"
)

const documentBody = `{
  "document": {
    "projectMeta": {"projectName": "Unit 4 Rewire"},
    "hazards": [
      {"text": "Live conductors", "likelihood": 4, "severity": 5, "riskScore": 20, "controlMeasure": "Isolate and lock off", "regulation": "BS 7671 132.8"}
    ],
    "ppeItems": [{"type": "Insulated gloves", "standard": "BS EN 60903", "purpose": "Shock protection", "mandatory": true}],
    "emergencyProcedures": ["Confirm safe isolation"]
  }
}`

func setupRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	NewHandler(svc).RegisterRoutes(api)
	return r
}

func TestGeneratePDFFallbackWithoutStore(t *testing.T) {
	r := setupRouter(t, &Service{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports/pdf", strings.NewReader(documentBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &payload)
	if payload["useFallback"] != true {
		t.Fatalf("expected useFallback, got %v", payload)
	}
	if _, ok := payload["downloadUrl"]; ok {
		t.Fatal("fallback response must not carry a download URL")
	}
}

func TestGeneratePDFRejectsEmptyDocument(t *testing.T) {
	r := setupRouter(t, &Service{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports/pdf", strings.NewReader(`{"document":{}}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGeneratePDFAndDownload(t *testing.T) {
	store := localstore.New(t.TempDir())
	r := setupRouter(t, &Service{Store: store})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports/pdf", strings.NewReader(documentBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload struct {
		Success     bool   `json:"success"`
		DownloadURL string `json:"downloadUrl"`
		FileName    string `json:"fileName"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Success || payload.DownloadURL == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if !strings.HasPrefix(payload.FileName, "RiskAssessment-Unit-4-Rewire-") || !strings.HasSuffix(payload.FileName, ".pdf") {
		t.Fatalf("unexpected file name %q", payload.FileName)
	}

	dl := httptest.NewRequest(http.MethodGet, payload.DownloadURL, nil)
	dlResp := httptest.NewRecorder()
	r.ServeHTTP(dlResp, dl)

	if dlResp.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", dlResp.Code)
	}
	if ct := dlResp.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	data, _ := io.ReadAll(dlResp.Body)
	if len(data) == 0 || !strings.HasPrefix(string(data), "%PDF") {
		t.Fatalf("expected PDF bytes, got %d bytes", len(data))
	}
}

func TestDownloadRejectsUnknownKey(t *testing.T) {
	store := localstore.New(t.TempDir())
	r := setupRouter(t, &Service{Store: store})

	for _, path := range []string{
		"/api/v1/exports/nope.pdf",
		"/api/v1/exports/exports/../secrets.txt",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.Code)
		}
	}
}
