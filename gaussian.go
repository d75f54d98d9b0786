package splats

import (
	"github.com/chewxy/math32"

	"github.com/matthewjberger/gaussian-splats/internal/splatcpu"
)

// Gaussian is one anisotropic 3D Gaussian of a scene.
//
// The fields carry the raw training parameterization: scale is stored as
// its logarithm, opacity as a logit, and color as the band-zero spherical
// harmonics coefficient. The renderer applies the activations (exp,
// sigmoid, SH evaluation) during projection.
type Gaussian struct {
	// Position is the center in world space.
	Position [3]float32

	// Rotation is the orientation quaternion in (w, x, y, z) order.
	// It is normalized on scene load; the zero quaternion degrades to
	// a tiny but finite rotation rather than producing NaNs.
	Rotation [4]float32

	// LogScale is the log of the per-axis standard deviation.
	LogScale [3]float32

	// OpacityLogit is the pre-sigmoid opacity.
	OpacityLogit float32

	// ColorDC is the band-zero spherical harmonics coefficient per
	// color channel.
	ColorDC [3]float32
}

// quatNormFloor keeps the quaternion normalization finite for
// degenerate inputs.
const quatNormFloor = 1e-8

// toKernel converts the public scene representation into the packed
// kernel form, normalizing quaternions on the way.
func toKernel(gaussians []Gaussian) []splatcpu.Gaussian {
	out := make([]splatcpu.Gaussian, len(gaussians))
	for i := range gaussians {
		g := &gaussians[i]
		out[i] = splatcpu.Gaussian{
			Position:     g.Position,
			OpacityLogit: g.OpacityLogit,
			ColorDC:      g.ColorDC,
			LogScale:     g.LogScale,
			Rotation:     normalizeQuat(g.Rotation),
		}
	}
	return out
}

func normalizeQuat(q [4]float32) [4]float32 {
	n := math32.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n < quatNormFloor {
		n = quatNormFloor
	}
	return [4]float32{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}
