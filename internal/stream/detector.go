package stream

import (
	"time"

	"github.com/streetwatch/streamserver/internal/motion"
	"github.com/streetwatch/streamserver/pkg/types"
)

// pipelineDetector adapts the motion package to the manager's frame
// flow, installing the circular mask lazily once the frame size is
// known.
type pipelineDetector struct {
	det    *motion.Detector
	mask   bool
	masked bool
}

func newPipelineDetector(cfg types.StreamConfig) *pipelineDetector {
	return &pipelineDetector{
		det:  motion.NewDetector(time.Now().UnixNano()),
		mask: cfg.CircularMask,
	}
}

func (p *pipelineDetector) Process(frame *types.Frame) bool {
	if p.mask && !p.masked {
		p.det.SetCircularROI(frame.Width(), frame.Height())
		p.masked = true
	}
	return p.det.Process(frame.Image)
}

func (p *pipelineDetector) Reset() {
	p.det.Reset()
}
