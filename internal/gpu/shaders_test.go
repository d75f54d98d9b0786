package gpu

import (
	"strings"
	"testing"
)

func TestShaderSourcesEmbedded(t *testing.T) {
	tests := []struct {
		name   string
		source string
		wants  []string
	}{
		{"preprocess", preprocessShaderSource, []string{"clear_sort", "fn main", "atomicAdd", "@workgroup_size(256)"}},
		{"sort", sortShaderSource, []string{"fn main", "block_size", "comparison_distance", "@workgroup_size(256)"}},
		{"render", renderShaderSource, []string{"vs_main", "fs_main", "discard", "instance_index"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.source == "" {
				t.Fatal("shader source is empty")
			}
			for _, want := range tt.wants {
				if !strings.Contains(tt.source, want) {
					t.Errorf("shader missing %q", want)
				}
			}
		})
	}
}

func TestShadersCompileToSPIRV(t *testing.T) {
	// naga validation catches WGSL errors without any GPU present.
	tests := []struct {
		name   string
		source string
	}{
		{"preprocess", preprocessShaderSource},
		{"sort", sortShaderSource},
		{"render", renderShaderSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := compileToSPIRV(tt.source)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if len(code) == 0 {
				t.Fatal("empty SPIR-V output")
			}
			// SPIR-V magic number.
			if code[0] != 0x07230203 {
				t.Errorf("SPIR-V magic = %#x, want 0x07230203", code[0])
			}
		})
	}
}
