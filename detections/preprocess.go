package detections

import (
	"image"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

var useDirectPixels = runtime.GOARCH != "amd64" || cpu.X86.HasSSE41

// Preprocessor converts a resized frame into the planar CHW float32 layout
// the network expects, values scaled to [0,1].
type Preprocessor struct {
	width, height int
	numWorkers    int
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		width:      InputWidth,
		height:     InputHeight,
		numWorkers: runtime.NumCPU(),
	}
}

// Process fills dst, which must hold width*height*3 floats. Contiguous
// pixel buffers take the direct row walk; anything else falls back to the
// color-model-agnostic path.
func (p *Preprocessor) Process(img image.Image, dst []float32) {
	if useDirectPixels {
		switch pic := img.(type) {
		case *image.NRGBA:
			p.processPix(pic.Pix, pic.Stride, dst)
			return
		case *image.RGBA:
			p.processPix(pic.Pix, pic.Stride, dst)
			return
		}
	}
	p.processGeneric(img, dst)
}

func (p *Preprocessor) processPix(pix []uint8, stride int, dst []float32) {
	channelSize := p.width * p.height

	p.parallelRows(func(startY, endY int) {
		for y := startY; y < endY; y++ {
			row := pix[y*stride:]
			offset := y * p.width
			for x := 0; x < p.width; x++ {
				i := offset + x
				px := row[x*4 : x*4+3 : x*4+3]
				dst[i] = float32(px[0]) / 255.0
				dst[channelSize+i] = float32(px[1]) / 255.0
				dst[channelSize*2+i] = float32(px[2]) / 255.0
			}
		}
	})
}

func (p *Preprocessor) processGeneric(img image.Image, dst []float32) {
	channelSize := p.width * p.height

	p.parallelRows(func(startY, endY int) {
		for y := startY; y < endY; y++ {
			offset := y * p.width
			for x := 0; x < p.width; x++ {
				i := offset + x
				r, g, b, _ := img.At(x, y).RGBA()
				dst[i] = float32(r>>8) / 255.0
				dst[channelSize+i] = float32(g>>8) / 255.0
				dst[channelSize*2+i] = float32(b>>8) / 255.0
			}
		}
	})
}

func (p *Preprocessor) parallelRows(fn func(startY, endY int)) {
	rowsPerWorker := p.height / p.numWorkers
	if rowsPerWorker == 0 {
		fn(0, p.height)
		return
	}

	var wg sync.WaitGroup
	wg.Add(p.numWorkers)

	for w := 0; w < p.numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if w == p.numWorkers-1 {
			endY = p.height
		}

		go func(startY, endY int) {
			defer wg.Done()
			fn(startY, endY)
		}(startY, endY)
	}

	wg.Wait()
}
