package splatcpu

import (
	"encoding/binary"

	"github.com/chewxy/math32"
)

// UniformsSize is the byte size of the per-frame uniform block.
// Layout: view mat4x4 + proj mat4x4 + viewport vec2 + focal vec2 +
// gaussian count u32 + padded count u32 + near epsilon + frustum margin +
// radius limit + 3 pad words. Must match the Uniforms struct in
// preprocess.wgsl and render.wgsl.
const UniformsSize = 176

// Uniforms is the per-frame parameter block shared by the projector and
// the compositor. Matrices are column-major, matching WGSL mat4x4.
type Uniforms struct {
	View          [16]float32
	Proj          [16]float32
	Viewport      [2]float32
	Focal         [2]float32
	GaussianCount uint32
	PaddedCount   uint32
	Params        Params
}

// NewUniforms derives the uniform block from camera matrices, viewport
// dimensions, and the scene size. Focal lengths come from the projection
// matrix: focal_x = proj[0][0] * width/2, focal_y = proj[1][1] * height/2.
func NewUniforms(view, proj [16]float32, width, height int, gaussianCount uint32, params Params) Uniforms {
	w := float32(width)
	h := float32(height)
	return Uniforms{
		View:          view,
		Proj:          proj,
		Viewport:      [2]float32{w, h},
		Focal:         [2]float32{proj[0] * w / 2, proj[5] * h / 2},
		GaussianCount: gaussianCount,
		PaddedCount:   PaddedCount(gaussianCount),
		Params:        params,
	}
}

// Bytes serializes the uniform block in the little-endian layout the
// shaders expect.
func (u Uniforms) Bytes() []byte {
	buf := make([]byte, UniformsSize)
	le := binary.LittleEndian
	off := 0
	putF32 := func(v float32) {
		le.PutUint32(buf[off:off+4], math32.Float32bits(v))
		off += 4
	}
	putU32 := func(v uint32) {
		le.PutUint32(buf[off:off+4], v)
		off += 4
	}
	for _, v := range u.View {
		putF32(v)
	}
	for _, v := range u.Proj {
		putF32(v)
	}
	putF32(u.Viewport[0])
	putF32(u.Viewport[1])
	putF32(u.Focal[0])
	putF32(u.Focal[1])
	putU32(u.GaussianCount)
	putU32(u.PaddedCount)
	putF32(u.Params.NearEpsilon)
	putF32(u.Params.FrustumMargin)
	putF32(u.Params.RadiusLimit)
	// Three pad words remain zero.
	return buf
}

// SortUniformsSize is the byte size of one bitonic pass parameter block:
// element count, block size, comparison distance, one pad word.
const SortUniformsSize = 16

// SortUniformBytes serializes the parameter block for one bitonic pass.
func SortUniformBytes(elementCount uint32, stage SortStage) []byte {
	buf := make([]byte, SortUniformsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], elementCount)
	le.PutUint32(buf[4:8], stage.BlockSize)
	le.PutUint32(buf[8:12], stage.Dist)
	return buf
}
