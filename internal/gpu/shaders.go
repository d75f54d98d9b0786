// Package gpu implements the splat rendering pipeline on wgpu/hal.
package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Embedded WGSL shader sources, compiled into the binary via go:embed.

//go:embed shaders/preprocess.wgsl
var preprocessShaderSource string

//go:embed shaders/sort.wgsl
var sortShaderSource string

//go:embed shaders/render.wgsl
var renderShaderSource string

// compileShader validates WGSL through naga, converts the resulting
// SPIR-V byte stream to 32-bit words, and creates a HAL shader module.
func compileShader(device hal.Device, label, source string) (hal.ShaderModule, error) {
	if source == "" {
		return nil, fmt.Errorf("%s: shader source is empty", label)
	}
	spirv, err := compileToSPIRV(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: create shader module: %w", label, err)
	}
	return module, nil
}

// compileToSPIRV compiles WGSL source to SPIR-V words.
// SPIR-V is a stream of little-endian 32-bit words.
func compileToSPIRV(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
