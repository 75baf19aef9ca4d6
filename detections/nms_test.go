package detections

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxIOUIdenticalBoxes(t *testing.T) {
	box := [4]float32{10, 10, 50, 50}
	assert.InDelta(t, 1.0, boxIOU(box, box), 1e-6)
}

func TestBoxIOUDisjointBoxes(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	b := [4]float32{20, 20, 30, 30}
	assert.Equal(t, float32(0), boxIOU(a, b))
}

func TestBoxIOUPartialOverlap(t *testing.T) {
	// Two 10x10 boxes sharing a 5x10 strip: IoU = 50 / (100+100-50)
	a := [4]float32{0, 0, 10, 10}
	b := [4]float32{5, 0, 15, 10}
	assert.InDelta(t, 50.0/150.0, boxIOU(a, b), 1e-6)
}

func TestNonMaxSuppressionKeepsHighestConfidence(t *testing.T) {
	dets := []rawDetection{
		{classID: 0, confidence: 0.6, box: [4]float32{0, 0, 100, 100}},
		{classID: 0, confidence: 0.9, box: [4]float32{5, 5, 105, 105}},
	}

	kept := nonMaxSuppression(dets)

	assert.Len(t, kept, 1)
	assert.Equal(t, float32(0.9), kept[0].confidence)
}

func TestNonMaxSuppressionIgnoresOtherClasses(t *testing.T) {
	dets := []rawDetection{
		{classID: 0, confidence: 0.9, box: [4]float32{0, 0, 100, 100}},
		{classID: 1, confidence: 0.6, box: [4]float32{0, 0, 100, 100}},
	}

	kept := nonMaxSuppression(dets)
	assert.Len(t, kept, 2)
}

func TestNonMaxSuppressionKeepsDistantBoxes(t *testing.T) {
	dets := []rawDetection{
		{classID: 2, confidence: 0.5, box: [4]float32{0, 0, 50, 50}},
		{classID: 2, confidence: 0.8, box: [4]float32{200, 200, 250, 250}},
	}

	kept := nonMaxSuppression(dets)

	assert.Len(t, kept, 2)
	// Sorted by confidence descending
	assert.Equal(t, float32(0.8), kept[0].confidence)
}

func TestNonMaxSuppressionEmptyInput(t *testing.T) {
	assert.Empty(t, nonMaxSuppression(nil))
}
