package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"downtime/internal/fixtures"
	"downtime/ml"
)

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

func predictRequest(t *testing.T, payload map[string]interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandlePredictNotTrained(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())
	w, payload := do(t, handler, predictRequest(t, fixtures.Payload(fixtures.MachineA, true)))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if payload["kind"] != string(ml.KindNotReady) {
		t.Fatalf("unexpected kind: %v", payload["kind"])
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "/train") {
		t.Fatalf("unexpected error message: %q", msg)
	}
}

func TestHandlePredict(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())
	uploadRaw(t, handler, fixtures.CSV(20))
	train(t, handler)

	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
	}{
		{"failure", fixtures.Payload(fixtures.MachineA, true), ml.LabelFailure},
		{"healthy", fixtures.Payload(fixtures.MachineB, false), ml.LabelNoFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, payload := do(t, handler, predictRequest(t, tt.payload))
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %v", w.Code, payload)
			}
			if payload["Downtime"] != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, payload["Downtime"])
			}
			confidence, ok := payload["Confidence"].(float64)
			if !ok || confidence < 0.5 || confidence > 1 {
				t.Fatalf("unexpected confidence: %v", payload["Confidence"])
			}
			if len(payload) != 2 {
				t.Fatalf("expected only Downtime and Confidence, got %v", payload)
			}
		})
	}
}

func TestHandlePredictStringSensorsWithoutDate(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())
	uploadRaw(t, handler, fixtures.CSV(20))
	train(t, handler)

	payload := fixtures.Payload(fixtures.MachineA, true)
	delete(payload, ml.ColumnDate)
	payload["Torque(Nm)"] = "61.0"

	w, body := do(t, handler, predictRequest(t, payload))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, body)
	}
}

func TestHandlePredictErrors(t *testing.T) {
	handler := newTestHandler(t, DefaultServerConfig())
	uploadRaw(t, handler, fixtures.CSV(20))
	train(t, handler)

	missing := fixtures.Payload(fixtures.MachineA, true)
	delete(missing, "Spindle_Vibration(µm)")

	nonNumeric := fixtures.Payload(fixtures.MachineA, true)
	nonNumeric["Voltage(volts)"] = "high"

	badDate := fixtures.Payload(fixtures.MachineA, true)
	badDate[ml.ColumnDate] = "2021-12-31"

	tests := []struct {
		name string
		req  *http.Request
		kind ml.ErrorKind
	}{
		{"missing sensor", predictRequest(t, missing), ml.KindSchema},
		{"non numeric", predictRequest(t, nonNumeric), ml.KindFormat},
		{"bad date", predictRequest(t, badDate), ml.KindFormat},
		{"unknown machine", predictRequest(t, fixtures.Payload("Okuma-L9-Unit9-2020", true)), ml.KindUnknownCategory},
		{"not json", httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("Machine_ID=1")), ml.KindFormat},
		{"json array", httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("[1,2]")), ml.KindFormat},
		{"null", httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("null")), ml.KindFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, payload := do(t, handler, tt.req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %v", w.Code, payload)
			}
			if payload["kind"] != string(tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, payload["kind"])
			}
		})
	}

	w, payload := do(t, handler, predictRequest(t, missing))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	fields, _ := payload["missing"].([]interface{})
	if len(fields) != 1 || fields[0] != "Spindle_Vibration(µm)" {
		t.Fatalf("unexpected missing fields: %v", payload["missing"])
	}
}
