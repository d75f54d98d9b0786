// Command splatview renders a Gaussian splat scene through both the CPU
// and GPU pipelines and produces a triptych image (CPU | GPU | Diff) for
// visual inspection.
//
// Without -ply it renders a built-in synthetic scene, a ring of colored
// splats around a central white one.
//
// Output:
//
//	tmp/splat_cpu.png         — CPU reference
//	tmp/splat_gpu.png         — GPU output (when a GPU is available)
//	tmp/splat_comparison.png  — Side-by-side triptych with diff
//	tmp/splat_preview.webp    — Half-size WebP preview (with -webp)
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/HugoSmits86/nativewebp"
	xdraw "golang.org/x/image/draw"

	splats "github.com/matthewjberger/gaussian-splats"
	"github.com/matthewjberger/gaussian-splats/ply"
)

const diffThreshold = 1.0 // Maximum acceptable diff percentage.

func main() {
	var (
		plyPath = flag.String("ply", "", "binary PLY scene file (default: synthetic scene)")
		width   = flag.Int("width", 512, "output width in pixels")
		height  = flag.Int("height", 512, "output height in pixels")
		outDir  = flag.String("out", "tmp", "output directory")
		webp    = flag.Bool("webp", false, "also write a half-size WebP preview")
		verbose = flag.Bool("v", false, "debug logging to stderr")
	)
	flag.Parse()

	fmt.Println("Gaussian Splat Pipeline Demo")
	fmt.Println("============================")
	fmt.Println()

	if *verbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		splats.SetLogger(logger)
	}

	scene, sceneName, err := loadScene(*plyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Scene: %s (%d gaussians)\n", sceneName, len(scene))
	fmt.Printf("Canvas: %dx%d\n\n", *width, *height)

	cam := orbitCamera(scene, *width, *height)

	// CPU render.
	cpuStart := time.Now()
	cpuImg, err := renderCPU(scene, cam, *width, *height)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: CPU render: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("CPU (splatcpu reference)... %v ✓\n", time.Since(cpuStart).Round(100*time.Microsecond))

	// GPU render.
	gpuImg, gpuName, gpuDur, gpuErr := renderGPU(scene, cam, *width, *height)
	if gpuErr != nil {
		fmt.Printf("GPU... SKIP (%v)\n", gpuErr)
	} else {
		fmt.Printf("GPU (%s)... %v ✓\n", gpuName, gpuDur.Round(100*time.Microsecond))
	}
	fmt.Println()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot create %s/: %v\n", *outDir, err)
		os.Exit(1)
	}

	cpuPath := filepath.Join(*outDir, "splat_cpu.png")
	if err := savePNG(cpuImg, cpuPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: save CPU image: %v\n", err)
		os.Exit(1)
	}

	if *webp {
		previewPath := filepath.Join(*outDir, "splat_preview.webp")
		if err := saveWebPPreview(cpuImg, previewPath); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: save preview: %v\n", err)
			os.Exit(1)
		}
	}

	if gpuImg == nil {
		fmt.Println("Output:")
		fmt.Printf("  CPU:        %s\n", cpuPath)
		fmt.Println("  GPU:        (skipped - no GPU)")
		return
	}

	gpuPath := filepath.Join(*outDir, "splat_gpu.png")
	if err := savePNG(gpuImg, gpuPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: save GPU image: %v\n", err)
		os.Exit(1)
	}

	diffPercent, diffCount := comparePixels(cpuImg, gpuImg)
	totalPixels := *width * *height
	status := "PASS"
	if diffPercent > diffThreshold {
		status = "FAIL"
	}
	fmt.Println("Comparison:")
	fmt.Printf("  Pixel diff: %d / %d (%.2f%%)\n", diffCount, totalPixels, diffPercent)
	fmt.Printf("  Status: %s (threshold: %.1f%%)\n", status, diffThreshold)
	fmt.Println()

	comparisonPath := filepath.Join(*outDir, "splat_comparison.png")
	if err := savePNG(buildTriptych(cpuImg, gpuImg), comparisonPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: save comparison: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Output:")
	fmt.Printf("  CPU:        %s\n", cpuPath)
	fmt.Printf("  GPU:        %s\n", gpuPath)
	fmt.Printf("  Comparison: %s\n", comparisonPath)

	if status == "FAIL" {
		os.Exit(1)
	}
}

// loadScene reads the PLY file at path, or builds the synthetic scene
// when path is empty.
func loadScene(path string) ([]splats.Gaussian, string, error) {
	if path == "" {
		return syntheticScene(), "synthetic ring", nil
	}
	scene, err := ply.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return scene, filepath.Base(path), nil
}

// syntheticScene builds a ring of 12 colored splats around a central
// white one, tilted so the anisotropy is visible.
func syntheticScene() []splats.Gaussian {
	const ringRadius = 1.5
	scene := []splats.Gaussian{{
		Position:     [3]float32{0, 0, 0},
		Rotation:     [4]float32{1, 0, 0, 0},
		LogScale:     [3]float32{-1, -1, -1},
		OpacityLogit: 4,
		ColorDC:      [3]float32{1.5, 1.5, 1.5},
	}}
	for i := 0; i < 12; i++ {
		angle := float64(i) * 2 * math.Pi / 12
		hue := float64(i) / 12
		r, g, b := hsvToRGB(hue, 0.9, 1)
		half := angle / 2
		scene = append(scene, splats.Gaussian{
			Position: [3]float32{
				ringRadius * float32(math.Cos(angle)),
				ringRadius * float32(math.Sin(angle)),
				0,
			},
			// Rotate each splat about +Z so the long axis follows the ring.
			Rotation:     [4]float32{float32(math.Cos(half)), 0, 0, float32(math.Sin(half))},
			LogScale:     [3]float32{-0.7, -2, -2},
			OpacityLogit: 2,
			// DC coefficients centered on 0.5 after the SH constant.
			ColorDC: [3]float32{
				(r - 0.5) / splatSHC0,
				(g - 0.5) / splatSHC0,
				(b - 0.5) / splatSHC0,
			},
		})
	}
	return scene
}

// splatSHC0 is the degree-0 spherical harmonics basis constant.
const splatSHC0 = 0.28209479177387814

func hsvToRGB(h, s, v float64) (float32, float32, float32) {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	switch int(i) % 6 {
	case 0:
		return float32(v), float32(t), float32(p)
	case 1:
		return float32(q), float32(v), float32(p)
	case 2:
		return float32(p), float32(v), float32(t)
	case 3:
		return float32(p), float32(q), float32(v)
	case 4:
		return float32(t), float32(p), float32(v)
	default:
		return float32(v), float32(p), float32(q)
	}
}

// orbitCamera places the camera on +Z looking at the scene centroid with
// a 60 degree vertical field of view.
func orbitCamera(scene []splats.Gaussian, width, height int) splats.Camera {
	var cx, cy, cz float32
	if len(scene) > 0 {
		for _, g := range scene {
			cx += g.Position[0]
			cy += g.Position[1]
			cz += g.Position[2]
		}
		n := float32(len(scene))
		cx, cy, cz = cx/n, cy/n, cz/n
	}
	eye := [3]float32{cx, cy, cz + 5}
	return splats.Camera{
		View: lookAt(eye, [3]float32{cx, cy, cz}, [3]float32{0, 1, 0}),
		Proj: perspective(math.Pi/3, float32(width)/float32(height), 0.1, 100),
	}
}

// lookAt builds a column-major right-handed view matrix.
func lookAt(eye, center, up [3]float32) [16]float32 {
	f := normalize3(sub3(center, eye))
	s := normalize3(cross3(f, up))
	u := cross3(s, f)
	return [16]float32{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		-dot3(s, eye), -dot3(u, eye), dot3(f, eye), 1,
	}
}

// perspective builds a column-major right-handed projection matrix with
// a [-1, 1] clip-space depth range.
func perspective(fovY, aspect, near, far float32) [16]float32 {
	t := float32(math.Tan(float64(fovY) / 2))
	var m [16]float32
	m[0] = 1 / (aspect * t)
	m[5] = 1 / t
	m[10] = -(far + near) / (far - near)
	m[11] = -1
	m[14] = -2 * far * near / (far - near)
	return m
}

func sub3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot3(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross3(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize3(v [3]float32) [3]float32 {
	n := float32(math.Sqrt(float64(dot3(v, v))))
	if n == 0 {
		return v
	}
	return [3]float32{v[0] / n, v[1] / n, v[2] / n}
}

// renderCPU renders through a renderer that never attaches a GPU.
func renderCPU(scene []splats.Gaussian, cam splats.Camera, width, height int) (*image.RGBA, error) {
	r := splats.NewRenderer(width, height)
	defer r.Close()
	if err := r.LoadScene(scene); err != nil {
		return nil, err
	}
	return r.RenderFrame(cam)
}

// renderGPU renders through the GPU pipeline. Returns an error when no
// usable adapter is found.
func renderGPU(scene []splats.Gaussian, cam splats.Camera, width, height int) (*image.RGBA, string, time.Duration, error) {
	r := splats.NewRenderer(width, height)
	defer r.Close()

	if err := r.Init(); err != nil {
		return nil, "", 0, fmt.Errorf("GPU init: %w", err)
	}
	if !r.GPUAvailable() {
		return nil, "", 0, fmt.Errorf("no GPU adapter available")
	}
	if err := r.LoadScene(scene); err != nil {
		return nil, "", 0, fmt.Errorf("upload: %w", err)
	}

	start := time.Now()
	img, err := r.RenderFrame(cam)
	dur := time.Since(start)
	if err != nil {
		return nil, "", 0, fmt.Errorf("render: %w", err)
	}
	return img, r.GPUName(), dur, nil
}

// comparePixels returns the percentage and count of pixels that differ
// between two images of the same dimensions.
func comparePixels(a, b *image.RGBA) (percent float64, count int) {
	bounds := a.Bounds()
	total := bounds.Dx() * bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			ca := a.RGBAAt(x, y)
			cb := b.RGBAAt(x, y)
			if ca.R != cb.R || ca.G != cb.G || ca.B != cb.B || ca.A != cb.A {
				count++
			}
		}
	}
	percent = float64(count) / float64(total) * 100
	return
}

// buildTriptych creates a side-by-side image: CPU | GPU | Diff.
func buildTriptych(cpuImg, gpuImg *image.RGBA) *image.RGBA {
	w := cpuImg.Bounds().Dx()
	h := cpuImg.Bounds().Dy()
	triptych := image.NewRGBA(image.Rect(0, 0, w*3, h))

	xdraw.Copy(triptych, image.Point{}, cpuImg, cpuImg.Bounds(), xdraw.Src, nil)
	xdraw.Copy(triptych, image.Point{X: w}, gpuImg, gpuImg.Bounds(), xdraw.Src, nil)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ca := cpuImg.RGBAAt(x, y)
			cb := gpuImg.RGBAAt(x, y)
			if ca.R != cb.R || ca.G != cb.G || ca.B != cb.B || ca.A != cb.A {
				// Different pixel: bright red.
				triptych.SetRGBA(w*2+x, y, color.RGBA{R: 255, A: 255})
			} else {
				// Matching pixel: grayscale.
				gray := uint8((uint32(ca.R) + uint32(ca.G) + uint32(ca.B)) / 3)
				triptych.SetRGBA(w*2+x, y, color.RGBA{R: gray, G: gray, B: gray, A: 255})
			}
		}
	}
	return triptych
}

// savePNG writes an RGBA image to a PNG file.
func savePNG(img *image.RGBA, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// saveWebPPreview writes a half-size lossless WebP of img.
func saveWebPPreview(img *image.RGBA, path string) error {
	half := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx()/2, img.Bounds().Dy()/2))
	xdraw.CatmullRom.Scale(half, half.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return nativewebp.Encode(f, half, nil)
}
