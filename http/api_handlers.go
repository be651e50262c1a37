package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"downtime/ml"
)

const defaultHistoryLimit = 20

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":      "ok",
		"model_ready": false,
		"system":      h.svc.Metrics().GetSystemStats(),
	}
	if info, err := h.svc.ModelInfo(); err == nil {
		status["model_ready"] = true
		status["artifact_id"] = info.ID
	}
	if h.hub != nil {
		status["events"] = h.hub.GetStats()
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ModelInfo()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *handlers) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, r, &ml.Error{Kind: ml.KindFormat, Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	history, err := h.svc.TrainingHistory(r.Context(), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": history})
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(h.svc.Metrics().ExportPrometheus()))
}

type errorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// statusFor 错误类型到HTTP状态码的映射
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch ml.KindOf(err) {
	case ml.KindIO, ml.KindSchema, ml.KindFormat, ml.KindUnknownCategory:
		return http.StatusBadRequest
	case ml.KindNotReady:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error(), Kind: string(ml.KindOf(err))}
	var mlErr *ml.Error
	if errors.As(err, &mlErr) && mlErr.Kind == ml.KindSchema {
		body.Missing = mlErr.Fields
	}

	fields := []zap.Field{
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request rejected", fields...)
	}
	respondJSON(w, status, body)
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}
