package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"downtime/ml"
	"downtime/monitoring"
	"downtime/service"
)

type handlers struct {
	svc    *service.Service
	hub    *monitoring.Hub
	logger *zap.Logger
	port   int
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("POST /upload", h.handleUpload)
	mux.HandleFunc("POST /train", h.handleTrain)
	mux.HandleFunc("POST /predict", h.handlePredict)

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("GET /api/training/history", h.handleTrainingHistory)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	if h.hub != nil {
		mux.HandleFunc("GET /ws/events", h.hub.HandleWebSocket)
	}
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	base := fmt.Sprintf("http://127.0.0.1:%d", h.port)
	example, _ := json.Marshal(examplePayload())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Welcome to the Predictive Analysis API! Use the following endpoints:",
		"endpoints": map[string]interface{}{
			"POST /upload":              "Upload a CSV file containing manufacturing data.",
			"POST /train":               "Train the machine learning model using the uploaded data.",
			"POST /predict":             "Make a prediction using input parameters.",
			"GET /api/model":            "Describe the trained model.",
			"GET /api/training/history": "List previous training runs.",
			"GET /ws/events":            "Stream upload, training and prediction events over WebSocket.",
			"Example": map[string]string{
				"Upload File":   fmt.Sprintf(`curl -X POST "%s/upload" -F "file=@machine_downtime.csv"`, base),
				"Train Model":   fmt.Sprintf(`curl -X POST "%s/train"`, base),
				"Predict":       fmt.Sprintf(`curl -X POST "%s/predict" -H "Content-Type: application/json" -d '%s'`, base, example),
				"Model Details": fmt.Sprintf(`curl "%s/api/model"`, base),
			},
		},
	})
}

func examplePayload() map[string]interface{} {
	values := []float64{125.33, 4.93, 6.19, 35.3, 47.4, 34.6, 1.38, 25.27, 19856, 368, 14.2, 2.68}
	payload := map[string]interface{}{
		ml.ColumnMachineID: "Makino-L1-Unit1-2013",
		ml.ColumnDate:      ml.DefaultPredictDate,
	}
	for i, s := range ml.Sensors() {
		payload[s.Column] = values[i]
	}
	return payload
}

func (h *handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := uploadBody(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer body.Close()

	result, err := h.svc.Upload(r.Context(), body)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// uploadBody accepts either a multipart form with a "file" field or the raw
// CSV as the request body.
func uploadBody(r *http.Request) (io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &ml.Error{Kind: ml.KindIO, Message: `multipart form must contain a "file" field`, Err: err}
	}
	return file, nil
}

func (h *handlers) handleTrain(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Train(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()

	var payload map[string]interface{}
	if err := decoder.Decode(&payload); err != nil || payload == nil {
		h.respondError(w, r, &ml.Error{Kind: ml.KindFormat, Message: "request body must be a JSON object", Err: err})
		return
	}

	prediction, err := h.svc.Predict(r.Context(), payload)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, prediction)
}
