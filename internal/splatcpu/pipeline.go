package splatcpu

import "image"

// Render runs the full CPU pipeline for one frame: project, sort,
// rasterize. This is the fallback path the renderer uses when no GPU
// backend is available, and what the GPU output is compared against.
func Render(gaussians []Gaussian, u Uniforms, width, height int) *image.RGBA {
	f := Project(gaussians, u)
	Sort(f.Keys, f.Values)
	return Rasterize(f, width, height)
}
