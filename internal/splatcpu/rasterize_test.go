package splatcpu

import (
	"testing"

	"github.com/chewxy/math32"
)

// frameOf builds a Frame directly from splats, drawn in slice order.
func frameOf(splats ...Splat) *Frame {
	n := PaddedCount(uint32(len(splats)))
	f := &Frame{
		Splats: make([]Splat, n),
		Keys:   make([]uint32, n),
		Values: make([]uint32, n),
		Count:  uint32(len(splats)),
	}
	copy(f.Splats, splats)
	for i := range f.Keys {
		f.Keys[i] = SentinelKey
	}
	for i := range splats {
		f.Values[i] = uint32(i)
	}
	return f
}

func TestRasterizeSingleSplat(t *testing.T) {
	s := Splat{
		Color:   [4]float32{1, 0, 0, 1},
		Conic:   [3]float32{1, 0, 1},
		Opacity: 1,
		Center:  [2]float32{4.5, 4.5}, // center of pixel (4, 4)
		Radius:  3,
	}
	img := Rasterize(frameOf(s), 9, 9)

	// At the center the falloff exponent is zero, so alpha is the
	// 0.99 cap. Premultiplied red then rounds to 252.
	c := img.RGBAAt(4, 4)
	if c.A != 252 || c.R != 252 {
		t.Errorf("center = %+v, want R=A=252", c)
	}
	if c.G != 0 || c.B != 0 {
		t.Errorf("center = %+v, want G=B=0", c)
	}

	// One pixel off center: alpha = exp(-0.5), below the cap.
	wantA := uint8(math32.Exp(-0.5)*255 + 0.5)
	if got := img.RGBAAt(5, 4).A; got != wantA {
		t.Errorf("offset alpha = %d, want %d", got, wantA)
	}

	// Far corner is outside the bounding box.
	if got := img.RGBAAt(0, 8); got.A != 0 {
		t.Errorf("corner alpha = %d, want 0", got.A)
	}
}

func TestRasterizeBlendOrder(t *testing.T) {
	far := Splat{
		Color:   [4]float32{1, 0, 0, 1},
		Conic:   [3]float32{0.01, 0, 0.01}, // wide and flat
		Opacity: 1,
		Center:  [2]float32{4.5, 4.5},
		Radius:  8,
	}
	near := far
	near.Color = [4]float32{0, 1, 0, 1}

	// Drawn back to front, the near green splat lands on top with
	// alpha 0.99 and almost fully replaces the red one.
	img := Rasterize(frameOf(far, near), 9, 9)
	c := img.RGBAAt(4, 4)
	if c.G <= c.R {
		t.Errorf("center = %+v, want green dominant", c)
	}
	// Reversed order puts red on top.
	img = Rasterize(frameOf(near, far), 9, 9)
	c = img.RGBAAt(4, 4)
	if c.R <= c.G {
		t.Errorf("reversed center = %+v, want red dominant", c)
	}
}

func TestRasterizeFragmentCulls(t *testing.T) {
	// A splat with opacity below the floor at every pixel leaves the
	// image untouched.
	s := Splat{
		Color:   [4]float32{1, 1, 1, 1},
		Conic:   [3]float32{1, 0, 1},
		Opacity: AlphaFloor / 2,
		Center:  [2]float32{4.5, 4.5},
		Radius:  3,
	}
	img := Rasterize(frameOf(s), 9, 9)
	for i, p := range img.Pix {
		if p != 0 {
			t.Fatalf("Pix[%d] = %d, want 0", i, p)
		}
	}
}

func TestRasterizeEmptyFrame(t *testing.T) {
	img := Rasterize(&Frame{}, 4, 4)
	b := img.Bounds()
	if b.Dx() != 4 || b.Dy() != 4 {
		t.Fatalf("bounds = %v, want 4x4", b)
	}
	for i, p := range img.Pix {
		if p != 0 {
			t.Fatalf("Pix[%d] = %d, want 0", i, p)
		}
	}
}

func TestRenderSmoke(t *testing.T) {
	gs := []Gaussian{
		testGaussian(0, 0, -5),
		testGaussian(0.5, 0.5, -3),
	}
	img := Render(gs, testUniforms(uint32(len(gs))), 64, 64)
	nonZero := 0
	for _, p := range img.Pix {
		if p != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		t.Fatal("rendered image is empty")
	}
}
