// Package splatcpu implements the Gaussian splat pipeline on the CPU.
//
// The three kernels (Project, Sort, Rasterize) mirror the WGSL shaders in
// internal/gpu/shaders operation for operation, so the package serves both
// as the correctness reference for the GPU path and as the fallback
// renderer when no GPU backend is available.
package splatcpu

import (
	"encoding/binary"
	"math/bits"

	"github.com/chewxy/math32"
)

const (
	// GaussianSize is the packed byte size of one Gaussian on the GPU.
	// Layout: position vec3 + opacity logit, color vec3 + pad,
	// log scale vec3 + pad, rotation vec4. All little-endian f32.
	GaussianSize = 64

	// SplatSize is the packed byte size of one screen splat.
	// Layout: color vec4, conic xx/xy/yy + opacity vec4, center vec2,
	// radius f32, pad f32.
	SplatSize = 48

	// SentinelKey pads the sort key list out to the next power of two.
	// It is the maximum u32, so padding always sorts to the tail.
	SentinelKey = 0xFFFFFFFF

	// AlphaFloor is the minimum meaningful alpha. Splats (and fragments)
	// below this contribute less than one 8-bit quantization step.
	AlphaFloor = 1.0 / 255.0

	// SH0 is the band-zero spherical harmonics basis constant used to
	// turn a DC coefficient into a base color.
	SH0 = 0.28209479177387814

	// CovarianceBlur is added to both diagonal terms of the projected
	// 2D covariance. It guarantees a minimum splat footprint of about
	// one pixel and keeps the conic inversion well conditioned.
	CovarianceBlur = 0.3

	// MaxFragmentAlpha caps per-fragment alpha so a single splat can
	// never fully occlude everything behind it.
	MaxFragmentAlpha = 0.99
)

// Gaussian is one anisotropic 3D Gaussian in the packed field order the
// GPU consumes: position, opacity logit, DC color, log scale, rotation.
type Gaussian struct {
	Position     [3]float32
	OpacityLogit float32
	ColorDC      [3]float32
	LogScale     [3]float32
	Rotation     [4]float32 // unit quaternion, (w, x, y, z)
}

// Splat is one projected Gaussian in screen space. Center and Radius are
// in pixels; Conic is the inverse 2D covariance (xx, xy, yy).
type Splat struct {
	Color   [4]float32
	Conic   [3]float32
	Opacity float32
	Center  [2]float32
	Radius  float32
}

// Params holds the empirical culling bounds of the projector. The
// defaults match the values splat renderers converged on in practice;
// they are exposed through the root package options.
type Params struct {
	// NearEpsilon culls Gaussians with view depth >= -NearEpsilon,
	// i.e. behind or within epsilon of the camera plane.
	NearEpsilon float32

	// FrustumMargin scales the NDC frustum test (and the Jacobian
	// tangent clamp) so splats whose center is just off screen still
	// contribute their visible tail.
	FrustumMargin float32

	// RadiusLimit culls splats whose pixel radius exceeds this bound.
	// Degenerate covariances otherwise produce screen-filling quads.
	RadiusLimit float32
}

// DefaultParams returns the culling bounds used when no options override them.
func DefaultParams() Params {
	return Params{
		NearEpsilon:   0.2,
		FrustumMargin: 1.3,
		RadiusLimit:   4096,
	}
}

// PaddedCount rounds n up to the next power of two, the element count the
// bitonic network requires. Zero stays zero: an empty scene dispatches nothing.
func PaddedCount(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return 1 << bits.Len32(n-1)
}

// DepthKey converts a positive view-space depth (distance in front of the
// camera) into a sort key. The bitwise complement of the IEEE-754 bits
// makes ascending u32 order run far-to-near, and keeps every real key
// below SentinelKey.
func DepthKey(depth float32) uint32 {
	return ^math32.Float32bits(depth)
}

// PackGaussians serializes gaussians into the 64-byte GPU record layout.
func PackGaussians(gaussians []Gaussian) []byte {
	buf := make([]byte, len(gaussians)*GaussianSize)
	for i := range gaussians {
		packGaussian(buf[i*GaussianSize:], &gaussians[i])
	}
	return buf
}

func packGaussian(buf []byte, g *Gaussian) {
	le := binary.LittleEndian
	putF32 := func(off int, v float32) {
		le.PutUint32(buf[off:off+4], math32.Float32bits(v))
	}
	putF32(0, g.Position[0])
	putF32(4, g.Position[1])
	putF32(8, g.Position[2])
	putF32(12, g.OpacityLogit)
	putF32(16, g.ColorDC[0])
	putF32(20, g.ColorDC[1])
	putF32(24, g.ColorDC[2])
	// bytes 28..31: pad
	putF32(32, g.LogScale[0])
	putF32(36, g.LogScale[1])
	putF32(40, g.LogScale[2])
	// bytes 44..47: pad
	putF32(48, g.Rotation[0])
	putF32(52, g.Rotation[1])
	putF32(56, g.Rotation[2])
	putF32(60, g.Rotation[3])
}
