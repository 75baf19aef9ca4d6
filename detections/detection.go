package detections

import (
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/skyloop/vision-inference-service/models"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

// ModelSession bundles an ONNX session with the fixed input/output tensors
// it was created against. Sessions are not safe for concurrent use; the
// pool hands each one to a single request at a time.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]

	preprocessor *Preprocessor
}

func NewModelSession(session *ort.AdvancedSession, input, output *ort.Tensor[float32]) *ModelSession {
	return &ModelSession{
		Session:      session,
		Input:        input,
		Output:       output,
		preprocessor: NewPreprocessor(),
	}
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

// ProcessImage runs the full detection pipeline on one frame: resize to the
// network input, preprocess, inference, anchor decoding, NMS and label
// resolution. Box coordinates in the result are in pixels of img.
func ProcessImage(img image.Image, model *ModelSession, timings *models.ProcessingTimings) ([]models.Detection, error) {
	resizeStart := time.Now()
	resized := imaging.Resize(img, InputWidth, InputHeight, imaging.Linear)
	timings.Resize = time.Since(resizeStart)

	prepStart := time.Now()
	model.preprocessor.Process(resized, model.Input.GetData())
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	if err := model.Session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	timings.Inference = time.Since(inferStart)

	postStart := time.Now()
	raw, err := decodePredictions(model.Output.GetData(), img.Bounds().Dx(), img.Bounds().Dy())
	if err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	timings.Postprocess = time.Since(postStart)

	nmsStart := time.Now()
	kept := nonMaxSuppression(raw)
	timings.NMS = time.Since(nmsStart)

	return toDetections(kept, img.Bounds().Dx(), img.Bounds().Dy()), nil
}

// decodePredictions walks the raw output tensor and keeps every anchor whose
// best class score clears the confidence threshold. Anchors are scanned in
// chunks across a worker pool.
func decodePredictions(predictions []float32, originalWidth, originalHeight int) ([]rawDetection, error) {
	expectedSize := (4 + NumClasses) * NumPredictions
	if len(predictions) != expectedSize {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(predictions), expectedSize)
	}

	const chunkSize = 512
	numWorkers := runtime.NumCPU()
	jobs := make(chan int, numWorkers)
	results := make(chan []rawDetection, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]rawDetection, 0, 64)

			for start := range jobs {
				end := start + chunkSize
				if end > NumPredictions {
					end = NumPredictions
				}

				for i := start; i < end; i++ {
					classID, score := bestClass(predictions, i)
					if score < ConfThreshold {
						continue
					}
					local = append(local, rawDetection{
						classID:    classID,
						confidence: score,
						box: anchorToBox(
							predictions[i],
							predictions[NumPredictions+i],
							predictions[2*NumPredictions+i],
							predictions[3*NumPredictions+i],
							float32(originalWidth),
							float32(originalHeight),
						),
					})
				}
			}

			if len(local) > 0 {
				results <- local
			}
		}()
	}

	go func() {
		for i := 0; i < NumPredictions; i += chunkSize {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	detections := make([]rawDetection, 0, 64)
	for chunk := range results {
		detections = append(detections, chunk...)
	}

	return detections, nil
}

// bestClass returns the argmax over the class score channels for anchor i.
func bestClass(predictions []float32, i int) (int, float32) {
	classID, score := 0, float32(0)
	for c := 0; c < NumClasses; c++ {
		if s := predictions[(4+c)*NumPredictions+i]; s > score {
			score = s
			classID = c
		}
	}
	return classID, score
}

// anchorToBox converts a center/size box in network input pixels into
// corner coordinates in source image pixels, clamped to the image bounds.
func anchorToBox(xc, yc, w, h, origWidth, origHeight float32) [4]float32 {
	scaleX := origWidth / InputWidth
	scaleY := origHeight / InputHeight

	x1 := (xc - w/2) * scaleX
	y1 := (yc - h/2) * scaleY
	x2 := (xc + w/2) * scaleX
	y2 := (yc + h/2) * scaleY

	return [4]float32{
		maxF(0, x1),
		maxF(0, y1),
		minF(origWidth, x2),
		minF(origHeight, y2),
	}
}

func toDetections(raw []rawDetection, originalWidth, originalHeight int) []models.Detection {
	out := make([]models.Detection, 0, len(raw))
	ow := float32(originalWidth)
	oh := float32(originalHeight)

	for _, det := range raw {
		b := det.box
		out = append(out, models.Detection{
			Class:      ClassName(det.classID),
			Confidence: det.confidence,
			BBox:       b,
			BBoxNormalized: [4]float32{
				(b[0] + b[2]) / 2 / ow,
				(b[1] + b[3]) / 2 / oh,
				(b[2] - b[0]) / ow,
				(b[3] - b[1]) / oh,
			},
		})
	}

	return out
}
