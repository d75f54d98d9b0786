package splatcpu

import (
	"testing"

	"github.com/chewxy/math32"
)

// testPerspective builds a column-major perspective projection.
func testPerspective(fovy, aspect, near, far float32) [16]float32 {
	f := 1 / math32.Tan(fovy/2)
	var m [16]float32
	m[0] = f / aspect
	m[5] = f
	m[10] = (far + near) / (near - far)
	m[11] = -1
	m[14] = 2 * far * near / (near - far)
	return m
}

func identityMat4() [16]float32 {
	var m [16]float32
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	return m
}

// testUniforms places the camera at the origin looking down -Z with a
// 90 degree field of view over a square viewport.
func testUniforms(count uint32) Uniforms {
	proj := testPerspective(math32.Pi/2, 1, 0.1, 100)
	return NewUniforms(identityMat4(), proj, 64, 64, count, DefaultParams())
}

// testGaussian returns a well-behaved Gaussian in front of the camera.
func testGaussian(x, y, z float32) Gaussian {
	return Gaussian{
		Position:     [3]float32{x, y, z},
		OpacityLogit: 2, // sigmoid(2) ~ 0.88
		ColorDC:      [3]float32{1, 0, 0},
		LogScale:     [3]float32{-2, -2, -2},
		Rotation:     [4]float32{1, 0, 0, 0},
	}
}

func TestProjectVisible(t *testing.T) {
	gs := []Gaussian{testGaussian(0, 0, -5)}
	f := Project(gs, testUniforms(1))

	if f.Count != 1 {
		t.Fatalf("Count = %d, want 1", f.Count)
	}
	s := f.Splats[0]
	if got, want := s.Center[0], float32(32); math32.Abs(got-want) > 0.01 {
		t.Errorf("Center[0] = %v, want %v", got, want)
	}
	if got, want := s.Center[1], float32(32); math32.Abs(got-want) > 0.01 {
		t.Errorf("Center[1] = %v, want %v", got, want)
	}
	if s.Radius <= 0 {
		t.Errorf("Radius = %v, want > 0", s.Radius)
	}
	wantOpacity := 1 / (1 + math32.Exp(-2))
	if math32.Abs(s.Opacity-wantOpacity) > 1e-6 {
		t.Errorf("Opacity = %v, want %v", s.Opacity, wantOpacity)
	}
	// Red DC coefficient of 1 maps past the clamp; green/blue sit at 0.5.
	if got, want := s.Color[0], clamp01(0.5+SH0*1); math32.Abs(got-want) > 1e-6 {
		t.Errorf("Color[0] = %v, want %v", got, want)
	}
	if s.Color[1] != 0.5 || s.Color[2] != 0.5 {
		t.Errorf("Color[1,2] = %v, %v, want 0.5, 0.5", s.Color[1], s.Color[2])
	}
}

func TestProjectCulling(t *testing.T) {
	tests := []struct {
		name    string
		g       Gaussian
		params  Params
		visible bool
	}{
		{
			name:    "in front of camera",
			g:       testGaussian(0, 0, -5),
			params:  DefaultParams(),
			visible: true,
		},
		{
			name:    "behind camera",
			g:       testGaussian(0, 0, 5),
			params:  DefaultParams(),
			visible: false,
		},
		{
			name:    "exactly at near epsilon",
			g:       testGaussian(0, 0, -0.2),
			params:  DefaultParams(),
			visible: false, // depth >= -epsilon is culled
		},
		{
			name:    "just inside near epsilon",
			g:       testGaussian(0, 0, -0.25),
			params:  DefaultParams(),
			visible: true,
		},
		{
			name:    "inside frustum margin",
			g:       testGaussian(6.4, 0, -5), // ndc.x = 1.28 < 1.3
			params:  DefaultParams(),
			visible: true,
		},
		{
			name:    "outside frustum margin",
			g:       testGaussian(6.6, 0, -5), // ndc.x = 1.32 > 1.3
			params:  DefaultParams(),
			visible: false,
		},
		{
			name: "opacity below floor",
			g: Gaussian{
				Position:     [3]float32{0, 0, -5},
				OpacityLogit: -6, // sigmoid(-6) ~ 0.0025 < 1/255
				LogScale:     [3]float32{-2, -2, -2},
				Rotation:     [4]float32{1, 0, 0, 0},
			},
			params:  DefaultParams(),
			visible: false,
		},
		{
			name: "radius above limit",
			g: Gaussian{
				Position:     [3]float32{0, 0, -5},
				OpacityLogit: 2,
				LogScale:     [3]float32{6, 6, 6}, // ~400 unit extent at depth 5
				Rotation:     [4]float32{1, 0, 0, 0},
			},
			params:  DefaultParams(),
			visible: false,
		},
		{
			name: "radius limit raised",
			g: Gaussian{
				Position:     [3]float32{0, 0, -5},
				OpacityLogit: 2,
				LogScale:     [3]float32{6, 6, 6},
				Rotation:     [4]float32{1, 0, 0, 0},
			},
			params:  Params{NearEpsilon: 0.2, FrustumMargin: 1.3, RadiusLimit: 1 << 20},
			visible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := testUniforms(1)
			u.Params = tt.params
			f := Project([]Gaussian{tt.g}, u)
			visible := f.Count == 1
			if visible != tt.visible {
				t.Errorf("visible = %v, want %v", visible, tt.visible)
			}
		})
	}
}

func TestProjectFrustumMarginBoundary(t *testing.T) {
	// An identity projection makes ndc.x equal the view x exactly, so the
	// boundary can be pinned bit for bit: a center exactly at the margin
	// survives, the next representable value out is culled.
	u := NewUniforms(identityMat4(), identityMat4(), 64, 64, 1, DefaultParams())
	margin := u.Params.FrustumMargin

	f := Project([]Gaussian{testGaussian(margin, 0, -5)}, u)
	if f.Count != 1 {
		t.Errorf("center exactly at margin: Count = %d, want 1", f.Count)
	}

	beyond := math32.Nextafter(margin, 2)
	f = Project([]Gaussian{testGaussian(beyond, 0, -5)}, u)
	if f.Count != 0 {
		t.Errorf("center one ulp beyond margin: Count = %d, want 0", f.Count)
	}
}

func TestConicSingularCovariance(t *testing.T) {
	// det == 0 exactly: no inverse, must be excluded.
	if _, det, ok := conicOf(0.5, 0.5, 0.5); ok || det != 0 {
		t.Errorf("conicOf(0.5, 0.5, 0.5) = ok %v, det %v, want excluded with det 0", ok, det)
	}
	// Negative determinant likewise.
	if _, _, ok := conicOf(1, 2, 1); ok {
		t.Error("conicOf(1, 2, 1) accepted a negative determinant")
	}
	// A well-conditioned covariance inverts.
	conic, det, ok := conicOf(2, 0, 2)
	if !ok || det != 4 {
		t.Fatalf("conicOf(2, 0, 2) = ok %v, det %v, want true, 4", ok, det)
	}
	if conic != [3]float32{0.5, 0, 0.5} {
		t.Errorf("conic = %v, want (0.5, 0, 0.5)", conic)
	}
}

func TestProjectCountExact(t *testing.T) {
	// 3 visible, 2 culled. The survivor count must be exact and the
	// padded tail must carry only sentinel keys.
	gs := []Gaussian{
		testGaussian(0, 0, -5),
		testGaussian(0, 0, 5), // behind
		testGaussian(1, 0, -8),
		testGaussian(100, 0, -5), // off screen
		testGaussian(-1, 1, -3),
	}
	f := Project(gs, testUniforms(uint32(len(gs))))

	if f.Count != 3 {
		t.Fatalf("Count = %d, want 3", f.Count)
	}
	if got := len(f.Keys); got != 8 {
		t.Fatalf("len(Keys) = %d, want padded 8", got)
	}
	for i := f.Count; i < uint32(len(f.Keys)); i++ {
		if f.Keys[i] != SentinelKey {
			t.Errorf("Keys[%d] = %#x, want sentinel", i, f.Keys[i])
		}
	}
	for i := uint32(0); i < f.Count; i++ {
		if f.Keys[i] == SentinelKey {
			t.Errorf("Keys[%d] is sentinel, want depth key", i)
		}
		if f.Values[i] != i {
			t.Errorf("Values[%d] = %d, want %d", i, f.Values[i], i)
		}
	}
}

func TestProjectSortRoundTrip(t *testing.T) {
	// Four splats at view depths 1, 5, 3, 10 must come out of the sort
	// in back-to-front order: 10, 5, 3, 1.
	depths := []float32{1, 5, 3, 10}
	gs := make([]Gaussian, len(depths))
	for i, d := range depths {
		gs[i] = testGaussian(0, 0, -d)
	}
	f := Project(gs, testUniforms(uint32(len(gs))))
	if f.Count != 4 {
		t.Fatalf("Count = %d, want 4", f.Count)
	}
	Sort(f.Keys, f.Values)

	wantOrder := []uint32{3, 1, 2, 0} // depths 10, 5, 3, 1
	for i, want := range wantOrder {
		if f.Values[i] != want {
			t.Errorf("Values[%d] = %d, want %d (depth order %v)", i, f.Values[i], want, depths)
		}
	}
}

func TestProjectSortIdempotent(t *testing.T) {
	gs := []Gaussian{
		testGaussian(0, 0, -7),
		testGaussian(1, 1, -2),
		testGaussian(-1, 0, -4),
	}
	f := Project(gs, testUniforms(uint32(len(gs))))
	Sort(f.Keys, f.Values)

	keys := append([]uint32(nil), f.Keys...)
	values := append([]uint32(nil), f.Values...)
	Sort(f.Keys, f.Values)

	for i := range keys {
		if f.Keys[i] != keys[i] || f.Values[i] != values[i] {
			t.Fatalf("sort not idempotent at %d: (%#x,%d) vs (%#x,%d)",
				i, f.Keys[i], f.Values[i], keys[i], values[i])
		}
	}
}

func TestProjectEmptyScene(t *testing.T) {
	f := Project(nil, testUniforms(0))
	if f.Count != 0 || len(f.Keys) != 0 {
		t.Errorf("empty scene: Count = %d, len(Keys) = %d, want 0, 0", f.Count, len(f.Keys))
	}
}

func TestDepthKeyOrdering(t *testing.T) {
	// Farther depth must produce a strictly smaller key, and every real
	// key must stay below the sentinel.
	depths := []float32{0.25, 1, 3, 5, 10, 1000}
	for i := 1; i < len(depths); i++ {
		near := DepthKey(depths[i-1])
		far := DepthKey(depths[i])
		if far >= near {
			t.Errorf("DepthKey(%v) = %#x not below DepthKey(%v) = %#x",
				depths[i], far, depths[i-1], near)
		}
	}
	for _, d := range depths {
		if DepthKey(d) == SentinelKey {
			t.Errorf("DepthKey(%v) collides with sentinel", d)
		}
	}
}
