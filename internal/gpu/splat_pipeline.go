// splat_pipeline.go defines the GPU frame pipeline: preprocess (project +
// cull), bitonic depth sort, and indirect-draw compositing. The command
// stream for one frame is encoded into a single command buffer so pass
// boundaries order the stages.

package gpu

import (
	"encoding/binary"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/matthewjberger/gaussian-splats/internal/splatcpu"
)

const (
	// workgroupSize is the compute workgroup size of every shader.
	// It matches @workgroup_size in preprocess.wgsl and sort.wgsl.
	workgroupSize = 256

	// splatVertexCount is the vertex count of one instanced splat quad,
	// two triangles. The value is baked into the indirect reset buffer.
	splatVertexCount = 6

	// indirectArgsSize is the byte size of the DrawIndirect argument
	// block: vertex count, instance count, first vertex, first instance.
	indirectArgsSize = 16

	// fenceTimeout bounds the wait for GPU completion of one frame.
	fenceTimeout = 5 * time.Second

	// targetFormat is the offscreen color target format. Readback
	// swizzles to RGBA.
	targetFormat = gputypes.TextureFormatBGRA8Unorm
)

// SplatPipeline owns every GPU resource of the splat renderer: the three
// shader pipelines, the per-scene buffers and bind groups, and the
// offscreen color target. Scene and target survive across frames; only
// the uniform contents and the command stream change per frame.
type SplatPipeline struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue

	preprocessShader hal.ShaderModule
	sortShader       hal.ShaderModule
	renderShader     hal.ShaderModule

	preprocessLayout hal.BindGroupLayout
	sortLayout       hal.BindGroupLayout
	renderLayout     hal.BindGroupLayout

	preprocessPipeLayout hal.PipelineLayout
	sortPipeLayout       hal.PipelineLayout
	renderPipeLayout     hal.PipelineLayout

	clearPipeline      hal.ComputePipeline
	preprocessPipeline hal.ComputePipeline
	sortPipeline       hal.ComputePipeline
	renderPipeline     hal.RenderPipeline

	scene  sceneResources
	target targetResources

	initialized bool
}

// sceneResources holds the buffers and bind groups built once per scene
// load. Sort pass parameters are static per scene (they depend only on
// the padded count), so each bitonic step gets its own small uniform
// buffer and bind group up front instead of per-frame rebinds.
type sceneResources struct {
	count  uint32
	padded uint32
	stages []splatcpu.SortStage

	gaussianBuf      hal.Buffer
	splatBuf         hal.Buffer
	keysBuf          hal.Buffer
	valuesBuf        hal.Buffer
	uniformBuf       hal.Buffer
	indirectBuf      hal.Buffer
	indirectResetBuf hal.Buffer
	sortUniformBufs  []hal.Buffer

	preprocessBindGroup hal.BindGroup
	renderBindGroup     hal.BindGroup
	sortBindGroups      []hal.BindGroup
}

// targetResources holds the offscreen color target.
type targetResources struct {
	width, height uint32
	tex           hal.Texture
	view          hal.TextureView
}

// NewSplatPipeline creates a pipeline attached to the given HAL device
// and queue. Init must be called before any other method.
func NewSplatPipeline(device hal.Device, queue hal.Queue) *SplatPipeline {
	return &SplatPipeline{device: device, queue: queue}
}

// Init compiles the three shaders and creates the compute and render
// pipelines. Safe to call more than once; later calls are no-ops.
func (p *SplatPipeline) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := p.createPipelines(); err != nil {
		p.destroyPipelines()
		return err
	}
	p.initialized = true
	slogger().Info("splat: pipelines initialized")
	return nil
}

// Close releases all GPU resources. The device itself is owned by the
// caller and stays open.
func (p *SplatPipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.destroyScene()
	p.destroyTarget()
	p.destroyPipelines()
	p.initialized = false
}

func (p *SplatPipeline) createPipelines() error {
	var err error
	if p.preprocessShader, err = compileShader(p.device, "splat_preprocess", preprocessShaderSource); err != nil {
		return err
	}
	if p.sortShader, err = compileShader(p.device, "splat_sort", sortShaderSource); err != nil {
		return err
	}
	if p.renderShader, err = compileShader(p.device, "splat_render", renderShaderSource); err != nil {
		return err
	}

	uniform := func(binding uint32, visibility gputypes.ShaderStage) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: visibility,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}
	}
	storageRO := func(binding uint32, visibility gputypes.ShaderStage) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: visibility,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	storageRW := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}

	// Preprocess bindings match preprocess.wgsl: uniforms, gaussians,
	// splats, keys, values, indirect draw args.
	p.preprocessLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "splat_preprocess_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniform(0, gputypes.ShaderStageCompute),
			storageRO(1, gputypes.ShaderStageCompute),
			storageRW(2), storageRW(3), storageRW(4), storageRW(5),
		},
	})
	if err != nil {
		return fmt.Errorf("create preprocess bind group layout: %w", err)
	}

	// Sort bindings match sort.wgsl: pass params, keys, values.
	p.sortLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "splat_sort_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniform(0, gputypes.ShaderStageCompute),
			storageRW(1), storageRW(2),
		},
	})
	if err != nil {
		return fmt.Errorf("create sort bind group layout: %w", err)
	}

	// Render bindings match render.wgsl: uniforms, splats, sorted values.
	p.renderLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "splat_render_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniform(0, gputypes.ShaderStageVertex|gputypes.ShaderStageFragment),
			storageRO(1, gputypes.ShaderStageVertex),
			storageRO(2, gputypes.ShaderStageVertex),
		},
	})
	if err != nil {
		return fmt.Errorf("create render bind group layout: %w", err)
	}

	if p.preprocessPipeLayout, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "splat_preprocess_pl", BindGroupLayouts: []hal.BindGroupLayout{p.preprocessLayout},
	}); err != nil {
		return fmt.Errorf("create preprocess pipeline layout: %w", err)
	}
	if p.sortPipeLayout, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "splat_sort_pl", BindGroupLayouts: []hal.BindGroupLayout{p.sortLayout},
	}); err != nil {
		return fmt.Errorf("create sort pipeline layout: %w", err)
	}
	if p.renderPipeLayout, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "splat_render_pl", BindGroupLayouts: []hal.BindGroupLayout{p.renderLayout},
	}); err != nil {
		return fmt.Errorf("create render pipeline layout: %w", err)
	}

	// clear_sort and the projector share the preprocess module.
	if p.clearPipeline, err = p.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "splat_clear",
		Layout:  p.preprocessPipeLayout,
		Compute: hal.ComputeState{Module: p.preprocessShader, EntryPoint: "clear_sort"},
	}); err != nil {
		return fmt.Errorf("create clear pipeline: %w", err)
	}
	if p.preprocessPipeline, err = p.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "splat_preprocess",
		Layout:  p.preprocessPipeLayout,
		Compute: hal.ComputeState{Module: p.preprocessShader, EntryPoint: "main"},
	}); err != nil {
		return fmt.Errorf("create preprocess pipeline: %w", err)
	}
	if p.sortPipeline, err = p.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "splat_sort",
		Layout:  p.sortPipeLayout,
		Compute: hal.ComputeState{Module: p.sortShader, EntryPoint: "main"},
	}); err != nil {
		return fmt.Errorf("create sort pipeline: %w", err)
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	if p.renderPipeline, err = p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "splat_render",
		Layout: p.renderPipeLayout,
		Vertex: hal.VertexState{
			Module:     p.renderShader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.renderShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    targetFormat,
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}); err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}
	return nil
}

// destroyPipelines releases pipeline resources in reverse creation order.
func (p *SplatPipeline) destroyPipelines() {
	if p.renderPipeline != nil {
		p.device.DestroyRenderPipeline(p.renderPipeline)
		p.renderPipeline = nil
	}
	if p.sortPipeline != nil {
		p.device.DestroyComputePipeline(p.sortPipeline)
		p.sortPipeline = nil
	}
	if p.preprocessPipeline != nil {
		p.device.DestroyComputePipeline(p.preprocessPipeline)
		p.preprocessPipeline = nil
	}
	if p.clearPipeline != nil {
		p.device.DestroyComputePipeline(p.clearPipeline)
		p.clearPipeline = nil
	}
	if p.renderPipeLayout != nil {
		p.device.DestroyPipelineLayout(p.renderPipeLayout)
		p.renderPipeLayout = nil
	}
	if p.sortPipeLayout != nil {
		p.device.DestroyPipelineLayout(p.sortPipeLayout)
		p.sortPipeLayout = nil
	}
	if p.preprocessPipeLayout != nil {
		p.device.DestroyPipelineLayout(p.preprocessPipeLayout)
		p.preprocessPipeLayout = nil
	}
	if p.renderLayout != nil {
		p.device.DestroyBindGroupLayout(p.renderLayout)
		p.renderLayout = nil
	}
	if p.sortLayout != nil {
		p.device.DestroyBindGroupLayout(p.sortLayout)
		p.sortLayout = nil
	}
	if p.preprocessLayout != nil {
		p.device.DestroyBindGroupLayout(p.preprocessLayout)
		p.preprocessLayout = nil
	}
	if p.renderShader != nil {
		p.device.DestroyShaderModule(p.renderShader)
		p.renderShader = nil
	}
	if p.sortShader != nil {
		p.device.DestroyShaderModule(p.sortShader)
		p.sortShader = nil
	}
	if p.preprocessShader != nil {
		p.device.DestroyShaderModule(p.preprocessShader)
		p.preprocessShader = nil
	}
}

// LoadScene uploads gaussians and builds the per-scene buffers and bind
// groups. An empty scene is valid: frames then clear the target and draw
// nothing.
func (p *SplatPipeline) LoadScene(gaussians []splatcpu.Gaussian) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return fmt.Errorf("splat: pipeline not initialized, call Init() first")
	}
	p.destroyScene()

	count := uint32(len(gaussians))
	padded := splatcpu.PaddedCount(count)
	p.scene.count = count
	p.scene.padded = padded
	if count == 0 {
		return nil
	}
	p.scene.stages = splatcpu.SortStages(padded)

	if err := p.createSceneBuffers(gaussians, count, padded); err != nil {
		p.destroyScene()
		return err
	}
	if err := p.createSceneBindGroups(); err != nil {
		p.destroyScene()
		return err
	}

	slogger().Debug("splat: scene loaded",
		"gaussians", count,
		"padded", padded,
		"sort_passes", len(p.scene.stages))
	return nil
}

func (p *SplatPipeline) createSceneBuffers(gaussians []splatcpu.Gaussian, count, padded uint32) error {
	create := func(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
		buf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
			Label: label,
			Size:  size,
			Usage: usage,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s buffer: %w", label, err)
		}
		return buf, nil
	}

	var err error
	s := &p.scene

	if s.gaussianBuf, err = create("splat_gaussians",
		uint64(count)*splatcpu.GaussianSize,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	p.queue.WriteBuffer(s.gaussianBuf, 0, splatcpu.PackGaussians(gaussians))

	if s.splatBuf, err = create("splat_splats",
		uint64(padded)*splatcpu.SplatSize,
		gputypes.BufferUsageStorage); err != nil {
		return err
	}
	if s.keysBuf, err = create("splat_sort_keys",
		uint64(padded)*4,
		gputypes.BufferUsageStorage); err != nil {
		return err
	}
	if s.valuesBuf, err = create("splat_sort_values",
		uint64(padded)*4,
		gputypes.BufferUsageStorage); err != nil {
		return err
	}
	if s.uniformBuf, err = create("splat_uniforms",
		splatcpu.UniformsSize,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}

	// The indirect args are reset each frame by a buffer copy from a
	// constant block; the preprocess shader then bumps the instance
	// count atomically. The count never crosses back to the host.
	if s.indirectBuf, err = create("splat_indirect",
		indirectArgsSize,
		gputypes.BufferUsageIndirect|gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if s.indirectResetBuf, err = create("splat_indirect_reset",
		indirectArgsSize,
		gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	reset := make([]byte, indirectArgsSize)
	binary.LittleEndian.PutUint32(reset[0:4], splatVertexCount)
	p.queue.WriteBuffer(s.indirectResetBuf, 0, reset)

	// One parameter block per bitonic step.
	s.sortUniformBufs = make([]hal.Buffer, len(s.stages))
	for i, stage := range s.stages {
		buf, bufErr := create(fmt.Sprintf("splat_sort_params_%d", i),
			splatcpu.SortUniformsSize,
			gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
		if bufErr != nil {
			return bufErr
		}
		s.sortUniformBufs[i] = buf
		p.queue.WriteBuffer(buf, 0, splatcpu.SortUniformBytes(padded, stage))
	}
	return nil
}

func (p *SplatPipeline) createSceneBindGroups() error {
	entry := func(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding: binding,
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}

	s := &p.scene
	var err error

	if s.preprocessBindGroup, err = p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "splat_preprocess_bg",
		Layout: p.preprocessLayout,
		Entries: []gputypes.BindGroupEntry{
			entry(0, s.uniformBuf),
			entry(1, s.gaussianBuf),
			entry(2, s.splatBuf),
			entry(3, s.keysBuf),
			entry(4, s.valuesBuf),
			entry(5, s.indirectBuf),
		},
	}); err != nil {
		return fmt.Errorf("create preprocess bind group: %w", err)
	}

	if s.renderBindGroup, err = p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "splat_render_bg",
		Layout: p.renderLayout,
		Entries: []gputypes.BindGroupEntry{
			entry(0, s.uniformBuf),
			entry(1, s.splatBuf),
			entry(2, s.valuesBuf),
		},
	}); err != nil {
		return fmt.Errorf("create render bind group: %w", err)
	}

	s.sortBindGroups = make([]hal.BindGroup, len(s.stages))
	for i := range s.stages {
		bg, bgErr := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("splat_sort_bg_%d", i),
			Layout: p.sortLayout,
			Entries: []gputypes.BindGroupEntry{
				entry(0, s.sortUniformBufs[i]),
				entry(1, s.keysBuf),
				entry(2, s.valuesBuf),
			},
		})
		if bgErr != nil {
			return fmt.Errorf("create sort bind group %d: %w", i, bgErr)
		}
		s.sortBindGroups[i] = bg
	}
	return nil
}

// destroyScene releases per-scene resources.
func (p *SplatPipeline) destroyScene() {
	s := &p.scene
	for _, bg := range s.sortBindGroups {
		if bg != nil {
			p.device.DestroyBindGroup(bg)
		}
	}
	if s.renderBindGroup != nil {
		p.device.DestroyBindGroup(s.renderBindGroup)
	}
	if s.preprocessBindGroup != nil {
		p.device.DestroyBindGroup(s.preprocessBindGroup)
	}
	for _, buf := range s.sortUniformBufs {
		if buf != nil {
			p.device.DestroyBuffer(buf)
		}
	}
	destroyBuf := func(b hal.Buffer) {
		if b != nil {
			p.device.DestroyBuffer(b)
		}
	}
	destroyBuf(s.indirectResetBuf)
	destroyBuf(s.indirectBuf)
	destroyBuf(s.uniformBuf)
	destroyBuf(s.valuesBuf)
	destroyBuf(s.keysBuf)
	destroyBuf(s.splatBuf)
	destroyBuf(s.gaussianBuf)
	*s = sceneResources{}
}

// Resize recreates the offscreen color target. On failure the target is
// released and rendering stays disabled until a successful Resize.
func (p *SplatPipeline) Resize(width, height uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return fmt.Errorf("splat: pipeline not initialized, call Init() first")
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("splat: invalid target size %dx%d", width, height)
	}
	if p.target.width == width && p.target.height == height && p.target.tex != nil {
		return nil
	}
	p.destroyTarget()

	tex, err := p.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "splat_target",
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        targetFormat,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create target texture: %w", err)
	}
	view, err := p.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "splat_target_view",
		Format:        targetFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		p.device.DestroyTexture(tex)
		return fmt.Errorf("create target view: %w", err)
	}

	p.target = targetResources{width: width, height: height, tex: tex, view: view}
	return nil
}

func (p *SplatPipeline) destroyTarget() {
	if p.target.view != nil {
		p.device.DestroyTextureView(p.target.view)
	}
	if p.target.tex != nil {
		p.device.DestroyTexture(p.target.tex)
	}
	p.target = targetResources{}
}

// RenderFrame encodes and submits one complete frame, then reads the
// color target back into an RGBA image. The uniform viewport must match
// the current target size.
func (p *SplatPipeline) RenderFrame(u splatcpu.Uniforms) (*image.RGBA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, fmt.Errorf("splat: pipeline not initialized, call Init() first")
	}
	if p.target.tex == nil {
		return nil, fmt.Errorf("splat: no render target, call Resize() first")
	}
	w, h := p.target.width, p.target.height
	if uint32(u.Viewport[0]) != w || uint32(u.Viewport[1]) != h {
		return nil, fmt.Errorf("splat: uniform viewport %gx%g does not match target %dx%d",
			u.Viewport[0], u.Viewport[1], w, h)
	}

	if p.scene.count > 0 {
		p.queue.WriteBuffer(p.scene.uniformBuf, 0, u.Bytes())
	}

	staging, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "splat_staging",
		Size:  uint64(w) * uint64(h) * 4,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer p.device.DestroyBuffer(staging)

	cmdBuf, err := p.encodeFrame(staging, w, h)
	if err != nil {
		return nil, err
	}
	defer p.device.FreeCommandBuffer(cmdBuf)

	fence, err := p.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer p.device.DestroyFence(fence)

	if err := p.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	ok, err := p.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("GPU timeout after %v", fenceTimeout)
	}

	readback := make([]byte, uint64(w)*uint64(h)*4)
	if err := p.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return bgraToRGBA(readback, int(w), int(h)), nil
}

// encodeFrame records the full frame command stream: indirect reset,
// clear_sort, preprocess, the bitonic passes, the indirect render pass,
// and the copy into the staging buffer.
func (p *SplatPipeline) encodeFrame(staging hal.Buffer, w, h uint32) (hal.CommandBuffer, error) {
	encoder, err := p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "splat_frame",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("splat_frame"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	s := &p.scene
	if s.count > 0 {
		encoder.CopyBufferToBuffer(s.indirectResetBuf, s.indirectBuf, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: indirectArgsSize},
		})

		computePass := func(label string, pipeline hal.ComputePipeline, bg hal.BindGroup, elements uint32) {
			pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
			pass.SetPipeline(pipeline)
			pass.SetBindGroup(0, bg, nil)
			pass.Dispatch(workgroups(elements), 1, 1)
			pass.End()
		}

		computePass("splat_clear", p.clearPipeline, s.preprocessBindGroup, s.padded)
		computePass("splat_preprocess", p.preprocessPipeline, s.preprocessBindGroup, s.count)
		// One pass per bitonic step so each step sees the previous
		// step's writes.
		for i := range s.stages {
			computePass("splat_sort", p.sortPipeline, s.sortBindGroups[i], s.padded/2)
		}
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "splat_render_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       p.target.view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	if s.count > 0 {
		rp.SetPipeline(p.renderPipeline)
		rp.SetBindGroup(0, s.renderBindGroup, nil)
		rp.DrawIndirect(s.indirectBuf, 0)
	}
	rp.End()

	// Transition for the readback copy; no-op on non-Vulkan backends.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: p.target.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(p.target.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: w * 4, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: p.target.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	return cmdBuf, nil
}

// workgroups is the ceiling division of elements by the workgroup size.
func workgroups(elements uint32) uint32 {
	return (elements + workgroupSize - 1) / workgroupSize
}

// bgraToRGBA swizzles the BGRA readback into a premultiplied RGBA image.
func bgraToRGBA(src []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4+0] = src[i*4+2]
		img.Pix[i*4+1] = src[i*4+1]
		img.Pix[i*4+2] = src[i*4+0]
		img.Pix[i*4+3] = src[i*4+3]
	}
	return img
}
