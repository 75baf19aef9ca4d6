package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/skyloop/vision-inference-service/detections"
	"github.com/skyloop/vision-inference-service/models"

	"github.com/getsentry/raven-go"
	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type contextKey string

const requestIDKey contextKey = "request_id"

type detectRequest struct {
	// Image is a pointer so that an absent key and a present-but-empty
	// payload stay distinguishable: only the former is "no image data".
	Image     *string     `json:"image"`
	Timestamp interface{} `json:"timestamp"`
}

type detectResponse struct {
	Success    bool               `json:"success"`
	Detections []models.Detection `json:"detections"`
	Count      int                `json:"count"`
}

type streamResponse struct {
	Detections []models.Detection `json:"detections"`
	Count      int                `json:"count"`
	Timestamp  interface{}        `json:"timestamp"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newRouter(state *AppState) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", state.handleHealth).Methods("GET")
	r.HandleFunc("/detect", state.handleDetect).Methods("POST")
	r.HandleFunc("/detect/stream", state.handleDetectStream).Methods("POST")
	state.addMonitoringRoutes(r)

	return requestIDMiddleware(corsMiddleware(recoveryMiddleware(r)))
}

func (s *AppState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		ModelLoaded: s.ModelLoaded(),
	})
}

func (s *AppState) handleDetect(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	timings := &models.ProcessingTimings{RequestID: requestID(r.Context())}

	req, ok := parseDetectRequest(w, r)
	if !ok {
		return
	}

	decodeStart := time.Now()
	img, err := decodeBase64Image(*req.Image)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		log.WithField("request_id", timings.RequestID).Errorf("image decode failed: %v", err)
		writeError(w, http.StatusBadRequest, MsgDecodeFailed)
		return
	}

	log.WithField("request_id", timings.RequestID).Debugf(
		"received image: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())

	results := s.detect(r.Context(), img, timings)

	timings.Total = time.Since(startTotal)
	logTimings(timings)

	writeJSON(w, http.StatusOK, detectResponse{
		Success:    true,
		Detections: results,
		Count:      len(results),
	})
}

func (s *AppState) handleDetectStream(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	timings := &models.ProcessingTimings{RequestID: requestID(r.Context())}

	req, ok := parseDetectRequest(w, r)
	if !ok {
		return
	}

	decodeStart := time.Now()
	img, err := decodeBase64Image(*req.Image)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		log.WithField("request_id", timings.RequestID).Errorf("image decode failed: %v", err)
		writeError(w, http.StatusBadRequest, MsgDecodeFailed)
		return
	}

	// Bound inference latency on the continuous feed
	img = resizeForStream(img)

	results := s.detect(r.Context(), img, timings)

	timings.Total = time.Since(startTotal)
	logTimings(timings)

	writeJSON(w, http.StatusOK, streamResponse{
		Detections: results,
		Count:      len(results),
		Timestamp:  req.Timestamp,
	})
}

// detect runs the detector on img. Degraded mode (no pool) and pipeline
// failures both yield an empty result; detection is never allowed to fail
// the request.
func (s *AppState) detect(ctx context.Context, img image.Image, timings *models.ProcessingTimings) []models.Detection {
	if s.Pool == nil {
		return []models.Detection{}
	}

	session, err := s.Pool.Acquire(ctx)
	if err != nil {
		log.WithField("request_id", timings.RequestID).Errorf("session acquire failed: %v", err)
		return []models.Detection{}
	}
	defer s.Pool.Release(session)

	results, err := detections.ProcessImage(img, session, timings)
	if err != nil {
		log.WithField("request_id", timings.RequestID).Errorf("object detection failed: %v", err)
		return []models.Detection{}
	}
	if results == nil {
		results = []models.Detection{}
	}

	return results
}

func parseDetectRequest(w http.ResponseWriter, r *http.Request) (detectRequest, bool) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == nil {
		writeError(w, http.StatusBadRequest, MsgNoImage)
		return detectRequest{}, false
	}
	return req, true
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"pool_size":        0,
		"sessions_in_use":  0,
		"total_acquired":   int64(0),
		"total_released":   int64(0),
		"acquire_failures": int64(0),
	}

	if s.Pool != nil {
		metrics := s.Pool.GetMetrics()
		response["pool_size"] = s.Pool.size
		response["sessions_in_use"] = metrics.InUse
		response["total_acquired"] = metrics.TotalAcquired
		response["total_released"] = metrics.TotalReleased
		response["acquire_failures"] = metrics.AcquireFailures
	}

	writeJSON(w, http.StatusOK, response)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.Must(uuid.NewV4()).String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("%v", rec)
				log.WithField("request_id", requestID(r.Context())).Errorf(
					"panic in %s %s: %v", r.Method, r.URL.Path, err)
				if sentryEnabled {
					raven.CaptureError(err, map[string]string{"path": r.URL.Path})
				}
				writeError(w, http.StatusInternalServerError, err.Error())
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func logTimings(t *models.ProcessingTimings) {
	log.WithField("request_id", t.RequestID).Debugf(
		"processing times: decode=%v resize=%v preprocess=%v inference=%v postprocess=%v nms=%v total=%v",
		t.ImageDecode, t.Resize, t.Preprocess, t.Inference, t.Postprocess, t.NMS, t.Total)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
