package splatcpu

import (
	"encoding/binary"
	"testing"

	"github.com/chewxy/math32"
)

func f32At(buf []byte, off int) float32 {
	return math32.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}

func u32At(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

func TestPackGaussianLayout(t *testing.T) {
	g := Gaussian{
		Position:     [3]float32{1, 2, 3},
		OpacityLogit: 4,
		ColorDC:      [3]float32{5, 6, 7},
		LogScale:     [3]float32{8, 9, 10},
		Rotation:     [4]float32{11, 12, 13, 14},
	}
	buf := PackGaussians([]Gaussian{g})
	if len(buf) != GaussianSize {
		t.Fatalf("len = %d, want %d", len(buf), GaussianSize)
	}

	tests := []struct {
		name string
		off  int
		want float32
	}{
		{"position.x", 0, 1},
		{"position.y", 4, 2},
		{"position.z", 8, 3},
		{"opacity_logit", 12, 4},
		{"color.r", 16, 5},
		{"color.g", 20, 6},
		{"color.b", 24, 7},
		{"log_scale.x", 32, 8},
		{"log_scale.y", 36, 9},
		{"log_scale.z", 40, 10},
		{"rotation.w", 48, 11},
		{"rotation.x", 52, 12},
		{"rotation.y", 56, 13},
		{"rotation.z", 60, 14},
	}
	for _, tt := range tests {
		if got := f32At(buf, tt.off); got != tt.want {
			t.Errorf("%s at %d = %v, want %v", tt.name, tt.off, got, tt.want)
		}
	}
	// Pad words stay zero.
	if u32At(buf, 28) != 0 || u32At(buf, 44) != 0 {
		t.Error("pad words not zero")
	}
}

func TestUniformsLayout(t *testing.T) {
	u := testUniforms(5)
	buf := u.Bytes()
	if len(buf) != UniformsSize {
		t.Fatalf("len = %d, want %d", len(buf), UniformsSize)
	}

	if got := f32At(buf, 0); got != u.View[0] {
		t.Errorf("view[0] = %v, want %v", got, u.View[0])
	}
	if got := f32At(buf, 64); got != u.Proj[0] {
		t.Errorf("proj[0] = %v, want %v", got, u.Proj[0])
	}
	if got := f32At(buf, 128); got != 64 {
		t.Errorf("viewport.x = %v, want 64", got)
	}
	if got := f32At(buf, 136); got != u.Focal[0] {
		t.Errorf("focal.x = %v, want %v", got, u.Focal[0])
	}
	if got := u32At(buf, 144); got != 5 {
		t.Errorf("gaussian count = %d, want 5", got)
	}
	if got := u32At(buf, 148); got != 8 {
		t.Errorf("padded count = %d, want 8", got)
	}
	if got := f32At(buf, 152); got != u.Params.NearEpsilon {
		t.Errorf("near epsilon = %v, want %v", got, u.Params.NearEpsilon)
	}
	if got := f32At(buf, 156); got != u.Params.FrustumMargin {
		t.Errorf("frustum margin = %v, want %v", got, u.Params.FrustumMargin)
	}
	if got := f32At(buf, 160); got != u.Params.RadiusLimit {
		t.Errorf("radius limit = %v, want %v", got, u.Params.RadiusLimit)
	}
}

func TestFocalDerivation(t *testing.T) {
	proj := testPerspective(math32.Pi/2, 1, 0.1, 100)
	u := NewUniforms(identityMat4(), proj, 800, 600, 0, DefaultParams())
	if want := proj[0] * 400; u.Focal[0] != want {
		t.Errorf("Focal[0] = %v, want %v", u.Focal[0], want)
	}
	if want := proj[5] * 300; u.Focal[1] != want {
		t.Errorf("Focal[1] = %v, want %v", u.Focal[1], want)
	}
}

func TestSortUniformBytes(t *testing.T) {
	buf := SortUniformBytes(1024, SortStage{BlockSize: 64, Dist: 32})
	if len(buf) != SortUniformsSize {
		t.Fatalf("len = %d, want %d", len(buf), SortUniformsSize)
	}
	if u32At(buf, 0) != 1024 || u32At(buf, 4) != 64 || u32At(buf, 8) != 32 {
		t.Errorf("layout = %d,%d,%d, want 1024,64,32",
			u32At(buf, 0), u32At(buf, 4), u32At(buf, 8))
	}
}
