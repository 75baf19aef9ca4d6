package detections

import "sort"

// rawDetection is a decoded model output box before label resolution.
type rawDetection struct {
	classID    int
	confidence float32
	box        [4]float32 // x1, y1, x2, y2 in source image pixels
}

// nonMaxSuppression deduplicates overlapping boxes of the same class,
// keeping the higher-confidence one. Boxes of different classes never
// suppress each other.
func nonMaxSuppression(dets []rawDetection) []rawDetection {
	if len(dets) == 0 {
		return nil
	}

	sort.Slice(dets, func(i, j int) bool {
		return dets[i].confidence > dets[j].confidence
	})

	suppressed := make([]bool, len(dets))
	kept := make([]rawDetection, 0, len(dets))

	for i := range dets {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])

		for j := i + 1; j < len(dets); j++ {
			if suppressed[j] || dets[j].classID != dets[i].classID {
				continue
			}
			if boxIOU(dets[i].box, dets[j].box) > IouThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

func boxIOU(a, b [4]float32) float32 {
	x1 := maxF(a[0], b[0])
	y1 := maxF(a[1], b[1])
	x2 := minF(a[2], b[2])
	y2 := minF(a[3], b[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
