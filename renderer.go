package splats

import (
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/matthewjberger/gaussian-splats/internal/gpu"
	"github.com/matthewjberger/gaussian-splats/internal/splatcpu"
)

// Renderer renders Gaussian splat scenes to RGBA images.
//
// A Renderer starts on the CPU pipeline; Init switches to the GPU
// pipeline when a Vulkan adapter is available. All methods are safe for
// concurrent use.
type Renderer struct {
	mu sync.Mutex

	cfg           config
	width, height int
	scene         []splatcpu.Gaussian

	dev      *gpu.Device
	pipe     *gpu.SplatPipeline
	gpuReady bool
}

// NewRenderer creates a renderer for the given output size. The renderer
// is immediately usable on the CPU path; call Init to attach a GPU.
func NewRenderer(width, height int, opts ...Option) *Renderer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Renderer{cfg: cfg, width: width, height: height}
}

// Init opens a GPU device and builds the splat pipeline. A missing or
// failing GPU is not an error: the renderer logs the reason and keeps
// the CPU path. After a device loss, Close and Init rebuild the GPU state.
func (r *Renderer) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gpuReady {
		return nil
	}
	dev, err := gpu.Open()
	if err != nil {
		Logger().Warn("splats: GPU unavailable, using CPU pipeline", "error", err)
		return nil
	}
	if err := r.attachDevice(dev); err != nil {
		Logger().Warn("splats: GPU init failed, using CPU pipeline", "error", err)
		dev.Close()
		return nil
	}
	return nil
}

// SetDeviceProvider switches the renderer to a shared GPU device from an
// external provider, typically the windowing host application. The
// provider must expose HAL types via HalDevice() and HalQueue().
func (r *Renderer) SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("splats: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("splats: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("splats: provider HalQueue is not hal.Queue")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeGPU()
	if err := r.attachDevice(gpu.NewSharedDevice(device, queue)); err != nil {
		return fmt.Errorf("splats: attach shared device: %w", err)
	}
	Logger().Info("splats: switched to shared GPU device")
	return nil
}

// attachDevice builds the pipeline on dev, sizes the target, and uploads
// any scene loaded before the GPU came up. Caller holds the lock.
func (r *Renderer) attachDevice(dev *gpu.Device) error {
	device, queue := dev.HAL()
	pipe := gpu.NewSplatPipeline(device, queue)
	if err := pipe.Init(); err != nil {
		return err
	}
	if err := pipe.Resize(uint32(r.width), uint32(r.height)); err != nil {
		pipe.Close()
		return err
	}
	if err := pipe.LoadScene(r.scene); err != nil {
		pipe.Close()
		return err
	}
	r.dev = dev
	r.pipe = pipe
	r.gpuReady = true
	return nil
}

// LoadScene replaces the scene. Quaternions are normalized on ingest.
// With a GPU attached the packed scene is uploaded immediately; an
// upload failure reports the error and drops back to the CPU path.
func (r *Renderer) LoadScene(gaussians []Gaussian) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scene = toKernel(gaussians)
	if !r.gpuReady {
		return nil
	}
	if err := r.pipe.LoadScene(r.scene); err != nil {
		r.disableGPU()
		return fmt.Errorf("splats: upload scene: %w", err)
	}
	return nil
}

// Resize changes the output size. With a GPU attached the color target
// is recreated; on failure rendering is disabled until a successful
// Resize.
func (r *Renderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("splats: invalid size %dx%d", width, height)
	}
	r.width = width
	r.height = height
	if !r.gpuReady {
		return nil
	}
	if err := r.pipe.Resize(uint32(width), uint32(height)); err != nil {
		r.disableGPU()
		return fmt.Errorf("splats: resize target: %w", err)
	}
	return nil
}

// RenderFrame renders one frame for the given camera and returns the
// premultiplied RGBA image. GPU submission errors (device loss) disable
// the GPU path and surface as errors; Close and Init rebuild it.
func (r *Renderer) RenderFrame(cam Camera) (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := splatcpu.NewUniforms(cam.View, cam.Proj, r.width, r.height,
		uint32(len(r.scene)), r.cfg.params)

	if r.gpuReady {
		img, err := r.pipe.RenderFrame(u)
		if err != nil {
			r.disableGPU()
			return nil, fmt.Errorf("splats: render frame: %w", err)
		}
		return img, nil
	}
	return splatcpu.Render(r.scene, u, r.width, r.height), nil
}

// GPUAvailable reports whether frames render on the GPU.
func (r *Renderer) GPUAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gpuReady
}

// GPUName returns the adapter name, or "" on the CPU path.
func (r *Renderer) GPUName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev == nil {
		return ""
	}
	return r.dev.Name()
}

// Close releases GPU resources. The renderer remains usable on the CPU
// path, and Init may be called again.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeGPU()
}

// disableGPU tears down the pipeline after a GPU error. Caller holds the
// lock.
func (r *Renderer) disableGPU() {
	Logger().Warn("splats: disabling GPU pipeline")
	r.closeGPU()
}

func (r *Renderer) closeGPU() {
	if r.pipe != nil {
		r.pipe.Close()
		r.pipe = nil
	}
	if r.dev != nil {
		r.dev.Close()
		r.dev = nil
	}
	r.gpuReady = false
}
