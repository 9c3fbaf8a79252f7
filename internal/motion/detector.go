// Package motion segments camera frames against an adaptive background
// model and debounces the per-frame verdicts into a stable motion flag.
package motion

import (
	"image"
)

const (
	blurKernelSize  = 25
	morphKernelSize = 7
	minBlobArea     = 500

	windowCapacity = 5
	windowRequired = 3
)

// Detector runs the full per-frame pipeline for one camera: grayscale,
// blur, background segmentation, morphological cleanup, blob area
// filtering, then debouncing. It is not safe for concurrent use; each
// stream owns its own detector.
type Detector struct {
	model  *BackgroundModel
	window *Window

	roi *image.Gray

	// scratch buffers reused across frames
	gray *image.Gray
	mask *image.Gray
}

// NewDetector returns a detector with an unseeded background model.
// The first frame processed always reports no motion.
func NewDetector(seed int64) *Detector {
	return &Detector{
		model:  NewBackgroundModel(seed),
		window: NewWindow(windowCapacity, windowRequired),
	}
}

// SetCircularROI restricts detection to a centered circular region of
// the given frame size, discarding foreground outside it. Passing zero
// dimensions removes the restriction.
func (d *Detector) SetCircularROI(width, height int) {
	if width <= 0 || height <= 0 {
		d.roi = nil
		return
	}
	roi := image.NewGray(image.Rect(0, 0, width, height))
	cx := float64(width) / 2
	cy := float64(height) / 2
	r := cx
	if cy < r {
		r = cy
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := float64(x) + 0.5 - cx
			dy := float64(y) + 0.5 - cy
			if dx*dx+dy*dy <= r*r {
				roi.Pix[y*roi.Stride+x] = 255
			}
		}
	}
	d.roi = roi
}

// Process runs one frame through the pipeline and returns the debounced
// motion flag.
func (d *Detector) Process(frame *image.RGBA) bool {
	d.gray = Grayscale(frame, d.gray)
	if d.roi != nil && d.roi.Rect == d.gray.Rect {
		// Outside the field of view everything is zeroed before any
		// filtering, so optics artifacts never reach the model.
		applyMask(d.gray, d.roi)
	}
	blurred := GaussianBlur(d.gray, blurKernelSize)
	d.mask = d.model.Apply(blurred, d.mask)

	mask := MorphClose(MorphOpen(d.mask, morphKernelSize), morphKernelSize)

	raw := false
	for _, area := range BlobAreas(mask) {
		if area >= minBlobArea {
			raw = true
			break
		}
	}
	return d.window.Add(raw)
}

// Reset clears the debounce window and forces the background model to
// reseed on the next frame. Used after a reconnect so stale state from
// the previous session cannot trigger a false clip.
func (d *Detector) Reset() {
	d.window.Reset()
	d.model.primed = false
}

func applyMask(mask, roi *image.Gray) {
	w := mask.Rect.Dx()
	h := mask.Rect.Dy()
	for y := 0; y < h; y++ {
		m := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		r := roi.Pix[y*roi.Stride : y*roi.Stride+w]
		for x := 0; x < w; x++ {
			if r[x] == 0 {
				m[x] = 0
			}
		}
	}
}
