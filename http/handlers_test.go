package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"downtime/db"
	"downtime/internal/fixtures"
	"downtime/ml"
	"downtime/pipeline"
	"downtime/registry"
	"downtime/service"
)

func newTestHandler(t *testing.T, config ServerConfig) http.Handler {
	t.Helper()
	dir := t.TempDir()
	store, err := db.Open(filepath.Join(dir, "downtime.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svcConfig := service.DefaultConfig()
	svcConfig.Forest.Trees = 10
	svc, err := service.New(svcConfig, service.Deps{
		Snapshots: pipeline.NewSnapshotStore(filepath.Join(dir, "data", "uploaded_data.csv")),
		Registry:  registry.New(filepath.Join(dir, "models", "model.json"), nil),
		Store:     store,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewServer(config, svc, nil, nil).Handler()
}

func do(t *testing.T, handler http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var payload map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
	}
	return w, payload
}

func uploadRaw(t *testing.T, handler http.Handler, body []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	w, payload := do(t, handler, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, payload)
	}
}

func train(t *testing.T, handler http.Handler) map[string]interface{} {
	t.Helper()
	w, payload := do(t, handler, httptest.NewRequest(http.MethodPost, "/train", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, payload)
	}
	return payload
}

func TestHandleRoot(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())
	w, payload := do(t, handler, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	endpoints, ok := payload["endpoints"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected endpoints, got %v", payload)
	}
	for _, key := range []string{"POST /upload", "POST /train", "POST /predict", "Example"} {
		if _, ok := endpoints[key]; !ok {
			t.Fatalf("missing endpoint %q", key)
		}
	}

	w, _ = do(t, handler, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleUploadMultipart(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "machine_downtime.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	part.Write(fixtures.CSV(20))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	w, payload := do(t, handler, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, payload)
	}
	if payload["message"] != "File uploaded successfully" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	columns, _ := payload["columns"].([]interface{})
	if len(columns) != 16 {
		t.Fatalf("expected 16 columns, got %v", payload["columns"])
	}
}

func TestHandleUploadErrors(t *testing.T) {
	config := DefaultServerConfig()
	config.MaxUploadBytes = 256
	handler := newTestHandler(t, config)

	w, payload := do(t, handler, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("")))
	if w.Code != http.StatusBadRequest || payload["kind"] != string(ml.KindIO) {
		t.Fatalf("expected IOError 400, got %d: %v", w.Code, payload)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	form.WriteField("other", "value")
	form.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	w, payload = do(t, handler, req)
	if w.Code != http.StatusBadRequest || payload["kind"] != string(ml.KindIO) {
		t.Fatalf("expected IOError 400, got %d: %v", w.Code, payload)
	}

	w, _ = do(t, handler, httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(fixtures.CSV(20))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}

	w, _ = do(t, handler, httptest.NewRequest(http.MethodGet, "/upload", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleTrain(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())

	w, payload := do(t, handler, httptest.NewRequest(http.MethodPost, "/train", nil))
	if w.Code != http.StatusBadRequest || payload["kind"] != string(ml.KindIO) {
		t.Fatalf("expected IOError before upload, got %d: %v", w.Code, payload)
	}

	uploadRaw(t, handler, fixtures.CSV(20))
	payload = train(t, handler)
	if payload["message"] != "Model trained successfully" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	if accuracy, _ := payload["accuracy"].(float64); accuracy < 0.75 {
		t.Fatalf("unexpected accuracy: %v", payload["accuracy"])
	}
	matrix, _ := payload["confusion_matrix"].([]interface{})
	if len(matrix) != 2 {
		t.Fatalf("unexpected confusion matrix: %v", payload["confusion_matrix"])
	}

	w, payload = do(t, handler, httptest.NewRequest(http.MethodGet, "/api/model", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	schema, _ := payload["schema"].([]interface{})
	if len(schema) != 15 || schema[0] != ml.FeatureDaysSinceStart {
		t.Fatalf("unexpected schema: %v", payload["schema"])
	}

	w, payload = do(t, handler, httptest.NewRequest(http.MethodGet, "/api/training/history?limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if runs, _ := payload["runs"].([]interface{}); len(runs) != 1 {
		t.Fatalf("expected 1 run, got %v", payload["runs"])
	}

	w, _ = do(t, handler, httptest.NewRequest(http.MethodGet, "/api/training/history?limit=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleTrainMissingColumns(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())
	uploadRaw(t, handler, []byte("Date,Machine_ID,Downtime\n01-12-2021,"+fixtures.MachineA+",No_Failure\n"))

	w, payload := do(t, handler, httptest.NewRequest(http.MethodPost, "/train", nil))
	if w.Code != http.StatusBadRequest || payload["kind"] != string(ml.KindSchema) {
		t.Fatalf("expected SchemaError 400, got %d: %v", w.Code, payload)
	}
	missing, _ := payload["missing"].([]interface{})
	if len(missing) != 12 || missing[0] != "Hydraulic_Pressure(bar)" {
		t.Fatalf("unexpected missing columns: %v", payload["missing"])
	}
}

func TestHandleHealthAndMetrics(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())

	w, payload := do(t, handler, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK || payload["status"] != "ok" || payload["model_ready"] != false {
		t.Fatalf("unexpected health: %d %v", w.Code, payload)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	uploadRaw(t, handler, fixtures.CSV(20))
	train(t, handler)

	_, payload = do(t, handler, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if payload["model_ready"] != true || payload["artifact_id"] == "" {
		t.Fatalf("expected ready model, got %v", payload)
	}

	w, _ = do(t, handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `downtime_trainings_total{outcome="ok"} 1`) {
		t.Fatalf("unexpected metrics:\n%s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	config := DefaultServerConfig()
	config.AllowedOrigins = []string{"http://dashboard.local"}
	handler := newTestHandler(t, config)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w, _ := do(t, handler, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://dashboard.local" {
		t.Fatalf("unexpected allow origin: %q", w.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://other.local")
	w, _ = do(t, handler, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS header for disallowed origin")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(nopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal server error") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
