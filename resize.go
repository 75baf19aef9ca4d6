package main

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// streamMaxSize caps the longer image side on the streaming path to bound
// inference latency.
const streamMaxSize = 640

// resizeForStream downsamples img so its longer side does not exceed
// streamMaxSize, preserving aspect ratio. Images already within the cap are
// returned unchanged.
func resizeForStream(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	longer := width
	if height > longer {
		longer = height
	}
	if longer <= streamMaxSize {
		return img
	}

	ratio := float64(streamMaxSize) / float64(longer)
	newWidth := int(math.Round(float64(width) * ratio))
	newHeight := int(math.Round(float64(height) * ratio))
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	return imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
}
