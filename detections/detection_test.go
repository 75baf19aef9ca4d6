package detections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPredictions returns a zeroed output tensor buffer with one anchor
// populated: a centered box in network input pixels with the given class
// score.
func buildPredictions(anchor int, xc, yc, w, h, score float32, classID int) []float32 {
	preds := make([]float32, (4+NumClasses)*NumPredictions)
	preds[anchor] = xc
	preds[NumPredictions+anchor] = yc
	preds[2*NumPredictions+anchor] = w
	preds[3*NumPredictions+anchor] = h
	preds[(4+classID)*NumPredictions+anchor] = score
	return preds
}

func TestDecodePredictionsRejectsWrongLength(t *testing.T) {
	_, err := decodePredictions(make([]float32, 100), 640, 640)
	assert.Error(t, err)
}

func TestDecodePredictionsScalesToSourceImage(t *testing.T) {
	// 160x160 box centered at (320,320) in a 640x640 input, source 1280x640:
	// scaleX=2, scaleY=1.
	preds := buildPredictions(0, 320, 320, 160, 160, 0.9, 5)

	dets, err := decodePredictions(preds, 1280, 640)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	det := dets[0]
	assert.Equal(t, 5, det.classID)
	assert.Equal(t, float32(0.9), det.confidence)
	assert.InDelta(t, 480, det.box[0], 0.01)
	assert.InDelta(t, 240, det.box[1], 0.01)
	assert.InDelta(t, 800, det.box[2], 0.01)
	assert.InDelta(t, 400, det.box[3], 0.01)
}

func TestDecodePredictionsClampsToImageBounds(t *testing.T) {
	// Box hanging over the top-left corner.
	preds := buildPredictions(7, 10, 10, 100, 100, 0.5, 0)

	dets, err := decodePredictions(preds, 640, 640)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	assert.Equal(t, float32(0), dets[0].box[0])
	assert.Equal(t, float32(0), dets[0].box[1])
}

func TestDecodePredictionsDropsLowConfidence(t *testing.T) {
	preds := buildPredictions(0, 320, 320, 100, 100, ConfThreshold-0.01, 3)

	dets, err := decodePredictions(preds, 640, 640)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestToDetectionsNormalizedBox(t *testing.T) {
	raw := []rawDetection{
		{classID: 2, confidence: 0.7, box: [4]float32{100, 50, 300, 250}},
	}

	dets := toDetections(raw, 400, 500)
	require.Len(t, dets, 1)

	det := dets[0]
	assert.Equal(t, "car", det.Class)
	assert.Equal(t, [4]float32{100, 50, 300, 250}, det.BBox)
	assert.InDelta(t, 0.5, det.BBoxNormalized[0], 1e-6)  // cx = 200/400
	assert.InDelta(t, 0.3, det.BBoxNormalized[1], 1e-6)  // cy = 150/500
	assert.InDelta(t, 0.5, det.BBoxNormalized[2], 1e-6)  // w = 200/400
	assert.InDelta(t, 0.4, det.BBoxNormalized[3], 1e-6)  // h = 200/500
}

func TestToDetectionsConfidenceRange(t *testing.T) {
	preds := buildPredictions(42, 100, 100, 50, 50, 0.31, 17)

	raw, err := decodePredictions(preds, 640, 640)
	require.NoError(t, err)

	for _, det := range toDetections(raw, 640, 640) {
		assert.GreaterOrEqual(t, det.Confidence, float32(0))
		assert.LessOrEqual(t, det.Confidence, float32(1))
		for _, v := range det.BBoxNormalized {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
		}
	}
}
