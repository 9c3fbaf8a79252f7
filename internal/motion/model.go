package motion

import (
	"image"
	"math/rand"
)

const (
	modelSamples  = 8
	modelMatches  = 2
	modelHistory  = 400
	distThreshold = 1000
)

// BackgroundModel classifies pixels as background or foreground against
// a per-pixel bank of recent intensity samples. A pixel is background
// when enough bank samples sit within the squared distance threshold;
// matched pixels refresh a random bank slot with probability derived
// from the history length, so the model adapts to gradual scene change
// while still flagging fast change as foreground.
type BackgroundModel struct {
	bank   []uint8
	width  int
	height int
	rng    *rand.Rand
	primed bool
}

// NewBackgroundModel returns an empty model. The first frame applied
// seeds every bank slot, so the first segmentation is all background.
func NewBackgroundModel(seed int64) *BackgroundModel {
	return &BackgroundModel{rng: rand.New(rand.NewSource(seed))}
}

// Apply segments one grayscale frame, returning a binary mask where
// foreground pixels are 255 and background pixels are 0. The mask is
// written into dst, which is allocated when nil or mis-sized.
func (m *BackgroundModel) Apply(frame *image.Gray, dst *image.Gray) *image.Gray {
	w := frame.Rect.Dx()
	h := frame.Rect.Dy()
	if dst == nil || dst.Rect.Dx() != w || dst.Rect.Dy() != h {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	}

	if !m.primed || m.width != w || m.height != h {
		m.seed(frame, w, h)
		for i := range dst.Pix {
			dst.Pix[i] = 0
		}
		return dst
	}

	// Matched pixels replace one of their bank samples roughly once
	// per history-length frames, mirroring a learning rate of
	// 1/history per slot.
	updateOdds := modelHistory / modelSamples
	if updateOdds < 1 {
		updateOdds = 1
	}

	for y := 0; y < h; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+w]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			v := int(row[x])
			base := (y*w + x) * modelSamples
			matches := 0
			for s := 0; s < modelSamples; s++ {
				d := v - int(m.bank[base+s])
				if d*d <= distThreshold {
					matches++
					if matches >= modelMatches {
						break
					}
				}
			}
			if matches >= modelMatches {
				out[x] = 0
				if m.rng.Intn(updateOdds) == 0 {
					m.bank[base+m.rng.Intn(modelSamples)] = uint8(v)
				}
			} else {
				out[x] = 255
			}
		}
	}
	return dst
}

func (m *BackgroundModel) seed(frame *image.Gray, w, h int) {
	m.width = w
	m.height = h
	m.bank = make([]uint8, w*h*modelSamples)
	for y := 0; y < h; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+w]
		for x := 0; x < w; x++ {
			base := (y*w + x) * modelSamples
			for s := 0; s < modelSamples; s++ {
				m.bank[base+s] = row[x]
			}
		}
	}
	m.primed = true
}
