package splatcpu

import "github.com/chewxy/math32"

// Frame holds the projector output for one frame: splat records, sort
// keys, and sort values, all sized to the padded element count. Count is
// the number of surviving splats; slots beyond it carry the sentinel key.
type Frame struct {
	Splats []Splat
	Keys   []uint32
	Values []uint32
	Count  uint32
}

// Project runs the preprocess kernel over every Gaussian, mirroring the
// clear_sort and main entry points of preprocess.wgsl. Culled Gaussians
// are silently excluded; the survivor count takes the role of the GPU's
// atomically bumped instance count.
func Project(gaussians []Gaussian, u Uniforms) *Frame {
	padded := PaddedCount(uint32(len(gaussians)))
	f := &Frame{
		Splats: make([]Splat, padded),
		Keys:   make([]uint32, padded),
		Values: make([]uint32, padded),
	}
	for i := range f.Keys {
		f.Keys[i] = SentinelKey
	}
	for i := range gaussians {
		s, key, ok := projectOne(&gaussians[i], u)
		if !ok {
			continue
		}
		slot := f.Count
		f.Count++
		f.Splats[slot] = s
		f.Keys[slot] = key
		f.Values[slot] = slot
	}
	return f
}

// projectOne transforms a single Gaussian to a screen splat. The second
// return value is the depth sort key. ok is false when any culling test
// fires: near plane, frustum margin, degenerate covariance, radius bound,
// or opacity floor.
func projectOne(g *Gaussian, u Uniforms) (Splat, uint32, bool) {
	var s Splat

	vx, vy, vz := mulMat4Point(u.View, g.Position)
	if vz >= -u.Params.NearEpsilon {
		return s, 0, false
	}

	cx, cy, _, cw := mulMat4Vec4(u.Proj, vx, vy, vz, 1)
	if cw == 0 {
		return s, 0, false
	}
	ndcX := cx / cw
	ndcY := cy / cw
	m := u.Params.FrustumMargin
	if math32.Abs(ndcX) > m || math32.Abs(ndcY) > m {
		return s, 0, false
	}

	a, b, d := projectCovariance(g, u, vx, vy, vz)
	conic, det, ok := conicOf(a, b, d)
	if !ok {
		return s, 0, false
	}

	mid := 0.5 * (a + d)
	lambda := mid + math32.Sqrt(math32.Max(0.1, mid*mid-det))
	radius := math32.Ceil(3 * math32.Sqrt(lambda))
	if radius <= 0 || radius > u.Params.RadiusLimit {
		return s, 0, false
	}

	opacity := sigmoid(g.OpacityLogit)
	if opacity < AlphaFloor {
		return s, 0, false
	}

	s.Color = [4]float32{
		clamp01(0.5 + SH0*g.ColorDC[0]),
		clamp01(0.5 + SH0*g.ColorDC[1]),
		clamp01(0.5 + SH0*g.ColorDC[2]),
		1,
	}
	s.Conic = conic
	s.Opacity = opacity
	s.Center = [2]float32{
		(ndcX*0.5 + 0.5) * u.Viewport[0],
		(1 - (ndcY*0.5 + 0.5)) * u.Viewport[1],
	}
	s.Radius = radius

	return s, DepthKey(-vz), true
}

// conicOf inverts the symmetric 2x2 screen covariance (a, b; b, d) into
// the conic (xx, xy, yy). ok is false for a zero or negative
// determinant: the covariance has no inverse and the splat is excluded.
func conicOf(a, b, d float32) (conic [3]float32, det float32, ok bool) {
	det = a*d - b*b
	if det <= 0 {
		return conic, det, false
	}
	return [3]float32{d / det, -b / det, a / det}, det, true
}

// projectCovariance builds the 3D covariance from rotation and scale,
// then projects it to the 2D screen covariance via the view rotation and
// the perspective Jacobian. Returns the symmetric 2x2 (a, b; b, d) with
// the blur term already added to the diagonal.
func projectCovariance(g *Gaussian, u Uniforms, tx, ty, tz float32) (a, b, d float32) {
	rot := quatToMat3(g.Rotation)

	// M = R * S, Sigma = M * M^T.
	sx := math32.Exp(g.LogScale[0])
	sy := math32.Exp(g.LogScale[1])
	sz := math32.Exp(g.LogScale[2])
	var mm [9]float32
	for r := 0; r < 3; r++ {
		mm[r*3+0] = rot[r*3+0] * sx
		mm[r*3+1] = rot[r*3+1] * sy
		mm[r*3+2] = rot[r*3+2] * sz
	}
	var sigma [9]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			sigma[r*3+c] = mm[r*3+0]*mm[c*3+0] + mm[r*3+1]*mm[c*3+1] + mm[r*3+2]*mm[c*3+2]
		}
	}

	// Clamp the tangents so the linearization stays bounded near the
	// frustum edges.
	limX := u.Params.FrustumMargin * (0.5 * u.Viewport[0] / u.Focal[0])
	limY := u.Params.FrustumMargin * (0.5 * u.Viewport[1] / u.Focal[1])
	tx = clampF(tx/tz, -limX, limX) * tz
	ty = clampF(ty/tz, -limY, limY) * tz

	fx := u.Focal[0]
	fy := u.Focal[1]
	jac := [9]float32{
		fx / tz, 0, -fx * tx / (tz * tz),
		0, fy / tz, -fy * ty / (tz * tz),
		0, 0, 0,
	}

	// W is the rotation part of the (column-major) view matrix.
	w := [9]float32{
		u.View[0], u.View[4], u.View[8],
		u.View[1], u.View[5], u.View[9],
		u.View[2], u.View[6], u.View[10],
	}

	t := mat3Mul(jac, w)
	cov := mat3Mul(mat3Mul(t, sigma), mat3Transpose(t))

	return cov[0] + CovarianceBlur, cov[1], cov[4] + CovarianceBlur
}

// quatToMat3 converts a (w, x, y, z) unit quaternion to a row-major
// rotation matrix.
func quatToMat3(q [4]float32) [9]float32 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	return [9]float32{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

func mat3Mul(a, b [9]float32) [9]float32 {
	var out [9]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = a[r*3+0]*b[c] + a[r*3+1]*b[3+c] + a[r*3+2]*b[6+c]
		}
	}
	return out
}

func mat3Transpose(a [9]float32) [9]float32 {
	return [9]float32{
		a[0], a[3], a[6],
		a[1], a[4], a[7],
		a[2], a[5], a[8],
	}
}

// mulMat4Point applies a column-major mat4 to a point with implicit w=1,
// without the perspective divide.
func mulMat4Point(m [16]float32, p [3]float32) (x, y, z float32) {
	x = m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12]
	y = m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13]
	z = m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14]
	return x, y, z
}

func mulMat4Vec4(m [16]float32, x, y, z, w float32) (ox, oy, oz, ow float32) {
	ox = m[0]*x + m[4]*y + m[8]*z + m[12]*w
	oy = m[1]*x + m[5]*y + m[9]*z + m[13]*w
	oz = m[2]*x + m[6]*y + m[10]*z + m[14]*w
	ow = m[3]*x + m[7]*y + m[11]*z + m[15]*w
	return ox, oy, oz, ow
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func clamp01(v float32) float32 {
	return clampF(v, 0, 1)
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
