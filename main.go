package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/skyloop/vision-inference-service/detections"

	"github.com/getsentry/raven-go"
	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var sentryEnabled bool

// AppState is the per-process context handed to every handler. Pool is nil
// when the model could not be brought up; the server then runs in degraded
// mode and answers every detection request with zero detections.
type AppState struct {
	ModelPath string
	Pool      *ModelSessionPool
}

func (s *AppState) ModelLoaded() bool {
	return s.Pool != nil
}

func main() {
	listenAddr := flag.String("listen", ":5001", "Address to listen on")
	modelPath := flag.String("model", envOr("MODEL_PATH", "yolov8n.onnx"), "Path to the ONNX detection model")
	onnxLib := flag.String("onnx-lib", "", "Path to the onnxruntime shared library (overrides autodetection)")
	poolSize := flag.Int("pool-size", DefaultPoolSize, "Number of model sessions to keep")
	debugMode := flag.Bool("debug", os.Getenv("DEBUG") == "true", "Enable debug logging with per-request timings")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *debugMode {
		log.SetLevel(log.DebugLevel)
	}

	sentryEnabled = initSentry(os.Getenv("SENTRY_DSN"))

	pool := initModelPool(*modelPath, *onnxLib, *poolSize)
	if pool != nil {
		defer pool.Destroy()
		defer ort.DestroyEnvironment()
	}

	state := &AppState{
		ModelPath: *modelPath,
		Pool:      pool,
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         *listenAddr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	log.Infof("starting vision inference server on %s (model loaded: %v)", srv.Addr, state.ModelLoaded())
	log.Fatal(srv.ListenAndServe())
}

// initModelPool brings up the ONNX runtime and the session pool. Every
// failure is downgraded to a warning: the server still serves health checks
// and empty detection results without a model.
func initModelPool(modelPath, libOverride string, size int) *ModelSessionPool {
	if _, err := os.Stat(modelPath); err != nil {
		log.Warnf("model %s not available, serving in degraded mode: %v", modelPath, err)
		return nil
	}

	libPath := libOverride
	if libPath == "" {
		libPath = sharedLibraryPath()
	}
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		log.Warnf("onnxruntime unavailable, serving in degraded mode: %v", err)
		return nil
	}

	pool, err := NewModelSessionPool(modelPath, size)
	if err != nil {
		log.Errorf("failed to build model session pool, serving in degraded mode: %v", err)
		ort.DestroyEnvironment()
		return nil
	}

	log.Infof("detection model %s loaded (%d sessions)", modelPath, size)
	return pool
}

func initSession(modelPath string) (*detections.ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputShape := ort.NewShape(1, 3, detections.InputHeight, detections.InputWidth)
	outputShape := ort.NewShape(1, 4+detections.NumClasses, detections.NumPredictions)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return detections.NewModelSession(session, inputTensor, outputTensor), nil
}

// initSentry wires up error reporting when a DSN is configured. A malformed
// DSN disables reporting rather than leaving a dead client behind.
func initSentry(dsn string) bool {
	if dsn == "" {
		return false
	}
	if err := raven.SetDSN(dsn); err != nil {
		log.Warnf("invalid SENTRY_DSN, error reporting disabled: %v", err)
		return false
	}
	return true
}

func envOr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
