package motion

import (
	"image"
	"math"
)

// Grayscale converts an RGBA frame to 8-bit luma using the BT.601
// integer weights. dst is reused when it matches the source size.
func Grayscale(src *image.RGBA, dst *image.Gray) *image.Gray {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	if dst == nil || dst.Rect.Dx() != w || dst.Rect.Dy() != h {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	}
	for y := 0; y < h; y++ {
		in := src.Pix[y*src.Stride : y*src.Stride+w*4]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			r := int(in[x*4])
			g := int(in[x*4+1])
			b := int(in[x*4+2])
			out[x] = uint8((299*r + 587*g + 114*b) / 1000)
		}
	}
	return dst
}

// GaussianBlur applies a separable Gaussian of the given odd kernel
// size. Sigma follows the usual 0.3*((size-1)*0.5 - 1) + 0.8 rule.
func GaussianBlur(src *image.Gray, size int) *image.Gray {
	if size < 3 {
		return src
	}
	if size%2 == 0 {
		size++
	}
	kernel := gaussianKernel(size)
	radius := size / 2

	w := src.Rect.Dx()
	h := src.Rect.Dy()
	tmp := image.NewGray(image.Rect(0, 0, w, h))
	dst := image.NewGray(image.Rect(0, 0, w, h))

	// Horizontal pass with edge clamping.
	for y := 0; y < h; y++ {
		in := src.Pix[y*src.Stride : y*src.Stride+w]
		out := tmp.Pix[y*tmp.Stride : y*tmp.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				xx := x + k
				if xx < 0 {
					xx = 0
				} else if xx >= w {
					xx = w - 1
				}
				acc += kernel[k+radius] * float64(in[xx])
			}
			out[x] = uint8(acc + 0.5)
		}
	}

	// Vertical pass.
	for y := 0; y < h; y++ {
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				yy := y + k
				if yy < 0 {
					yy = 0
				} else if yy >= h {
					yy = h - 1
				}
				acc += kernel[k+radius] * float64(tmp.Pix[yy*tmp.Stride+x])
			}
			out[x] = uint8(acc + 0.5)
		}
	}
	return dst
}

func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	kernel := make([]float64, size)
	radius := size / 2
	var sum float64
	for i := 0; i < size; i++ {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// ellipseKernel returns the offsets of an elliptical structuring
// element of the given odd size, matching the usual ellipse shape used
// for morphology.
func ellipseKernel(size int) []image.Point {
	radius := size / 2
	r := float64(radius)
	var pts []image.Point
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			fx := float64(dx) / (r + 0.5)
			fy := float64(dy) / (r + 0.5)
			if fx*fx+fy*fy <= 1.0 {
				pts = append(pts, image.Point{X: dx, Y: dy})
			}
		}
	}
	return pts
}

// MorphOpen erodes then dilates a binary mask, removing speckle noise
// smaller than the structuring element.
func MorphOpen(mask *image.Gray, size int) *image.Gray {
	kernel := ellipseKernel(size)
	return dilate(erode(mask, kernel), kernel)
}

// MorphClose dilates then erodes a binary mask, filling small holes
// inside foreground blobs.
func MorphClose(mask *image.Gray, size int) *image.Gray {
	kernel := ellipseKernel(size)
	return erode(dilate(mask, kernel), kernel)
}

func erode(src *image.Gray, kernel []image.Point) *image.Gray {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255)
			for _, p := range kernel {
				xx, yy := x+p.X, y+p.Y
				if xx < 0 || xx >= w || yy < 0 || yy >= h {
					v = 0
					break
				}
				if src.Pix[yy*src.Stride+xx] == 0 {
					v = 0
					break
				}
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}

func dilate(src *image.Gray, kernel []image.Point) *image.Gray {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8
			for _, p := range kernel {
				xx, yy := x+p.X, y+p.Y
				if xx < 0 || xx >= w || yy < 0 || yy >= h {
					continue
				}
				if src.Pix[yy*src.Stride+xx] != 0 {
					v = 255
					break
				}
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}

// BlobAreas measures the pixel area of every 8-connected foreground
// blob in a binary mask.
func BlobAreas(mask *image.Gray) []int {
	w := mask.Rect.Dx()
	h := mask.Rect.Dy()
	visited := make([]bool, w*h)
	var areas []int
	var stack []image.Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || mask.Pix[y*mask.Stride+x] == 0 {
				continue
			}
			area := 0
			stack = append(stack[:0], image.Point{X: x, Y: y})
			visited[y*w+x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				area++
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						xx, yy := p.X+dx, p.Y+dy
						if xx < 0 || xx >= w || yy < 0 || yy >= h {
							continue
						}
						if visited[yy*w+xx] || mask.Pix[yy*mask.Stride+xx] == 0 {
							continue
						}
						visited[yy*w+xx] = true
						stack = append(stack, image.Point{X: xx, Y: yy})
					}
				}
			}
			areas = append(areas, area)
		}
	}
	return areas
}
