package splatcpu

import (
	"image"

	"github.com/chewxy/math32"
)

// Rasterize composites a projected and sorted frame into an RGBA image,
// mirroring render.wgsl: splats draw in sort-value order (back to front),
// each one evaluated as a Gaussian falloff around its center and blended
// with the premultiplied-alpha over operator onto a transparent black
// background.
func Rasterize(f *Frame, width, height int) *image.RGBA {
	// Premultiplied float accumulation, RGBA per pixel.
	acc := make([]float32, width*height*4)

	for i := uint32(0); i < f.Count; i++ {
		s := &f.Splats[f.Values[i]]
		blendSplat(acc, s, width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = toByte(acc[i*4+0])
		img.Pix[i*4+1] = toByte(acc[i*4+1])
		img.Pix[i*4+2] = toByte(acc[i*4+2])
		img.Pix[i*4+3] = toByte(acc[i*4+3])
	}
	return img
}

// blendSplat evaluates one splat over its bounding box, the CPU stand-in
// for the instanced quad plus fragment shader.
func blendSplat(acc []float32, s *Splat, width, height int) {
	minX := clampI(int(math32.Floor(s.Center[0]-s.Radius)), 0, width)
	maxX := clampI(int(math32.Ceil(s.Center[0]+s.Radius)), 0, width)
	minY := clampI(int(math32.Floor(s.Center[1]-s.Radius)), 0, height)
	maxY := clampI(int(math32.Ceil(s.Center[1]+s.Radius)), 0, height)

	cxx, cxy, cyy := s.Conic[0], s.Conic[1], s.Conic[2]
	for py := minY; py < maxY; py++ {
		dy := float32(py) + 0.5 - s.Center[1]
		for px := minX; px < maxX; px++ {
			dx := float32(px) + 0.5 - s.Center[0]
			power := -0.5*(cxx*dx*dx+cyy*dy*dy) - cxy*dx*dy
			if power > 0 {
				continue
			}
			alpha := math32.Min(MaxFragmentAlpha, s.Opacity*math32.Exp(power))
			if alpha < AlphaFloor {
				continue
			}
			// Source-over with premultiplied source.
			o := (py*width + px) * 4
			inv := 1 - alpha
			acc[o+0] = s.Color[0]*alpha + acc[o+0]*inv
			acc[o+1] = s.Color[1]*alpha + acc[o+1]*inv
			acc[o+2] = s.Color[2]*alpha + acc[o+2]*inv
			acc[o+3] = alpha + acc[o+3]*inv
		}
	}
}

func toByte(v float32) uint8 {
	return uint8(clampF(v, 0, 1)*255 + 0.5)
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
