// Package splats renders 3D Gaussian splat scenes.
//
// # Overview
//
// A scene is a set of anisotropic 3D Gaussians, typically the output of
// gaussian splatting training. Each frame the renderer projects every
// Gaussian to a screen-space splat, depth-sorts the visible set with a
// parallel bitonic network, and composites the splats back to front with
// premultiplied alpha. On the GPU the whole frame is one command stream:
// the visible count stays on the device and feeds an indirect draw, so
// the host never reads it back.
//
// # Quick Start
//
//	import "github.com/matthewjberger/gaussian-splats"
//
//	r := splats.NewRenderer(1280, 720)
//	if err := r.Init(); err != nil {
//		log.Fatal(err)
//	}
//	defer r.Close()
//
//	r.LoadScene(scene) // []splats.Gaussian, e.g. from the ply package
//	img, err := r.RenderFrame(camera)
//
// # Rendering paths
//
// Init probes for a Vulkan adapter via gogpu/wgpu. When none is
// available the renderer falls back to a CPU pipeline with identical
// semantics; RenderFrame works either way and returns an RGBA image.
// The CPU kernels also serve as the reference the GPU shaders are
// tested against.
//
// # Architecture
//
//   - Public API: Renderer, Gaussian, Camera, Option
//   - ply/: binary PLY scene loader
//   - internal/splatcpu: CPU reference kernels (project, sort, rasterize)
//   - internal/gpu: wgpu/hal pipelines and WGSL shaders
//
// # Coordinate System
//
// Cameras follow the usual right-handed convention: the view transform
// looks down -Z, and matrices are column-major as in WGSL. Output images
// have the origin at the top-left with Y increasing down.
package splats
