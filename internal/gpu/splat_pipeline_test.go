package gpu

import (
	"encoding/binary"
	"testing"

	"github.com/matthewjberger/gaussian-splats/internal/splatcpu"
)

func TestWorkgroups(t *testing.T) {
	tests := []struct {
		elements, want uint32
	}{
		{0, 0},
		{1, 1},
		{255, 1},
		{256, 1},
		{257, 2},
		{1 << 20, 4096},
	}
	for _, tt := range tests {
		if got := workgroups(tt.elements); got != tt.want {
			t.Errorf("workgroups(%d) = %d, want %d", tt.elements, got, tt.want)
		}
	}
}

func TestIndirectResetBlock(t *testing.T) {
	// The reset block fixes the vertex count at 6 and zeroes the
	// instance count the shader bumps.
	reset := make([]byte, indirectArgsSize)
	binary.LittleEndian.PutUint32(reset[0:4], splatVertexCount)

	if got := binary.LittleEndian.Uint32(reset[0:4]); got != 6 {
		t.Errorf("vertex count = %d, want 6", got)
	}
	for off := 4; off < indirectArgsSize; off += 4 {
		if got := binary.LittleEndian.Uint32(reset[off : off+4]); got != 0 {
			t.Errorf("word at %d = %d, want 0", off, got)
		}
	}
}

func TestFrameDispatchCounts(t *testing.T) {
	// For a million gaussians: padded count, sort pass count, and the
	// per-pass workgroup counts the frame encoder would issue.
	const count = 1_000_000
	padded := splatcpu.PaddedCount(count)
	if padded != 1<<20 {
		t.Fatalf("padded = %d, want %d", padded, 1<<20)
	}
	stages := splatcpu.SortStages(padded)
	if len(stages) != 210 { // k = 20 -> k*(k+1)/2
		t.Fatalf("sort passes = %d, want 210", len(stages))
	}
	if got := workgroups(padded); got != 4096 {
		t.Errorf("clear workgroups = %d, want 4096", got)
	}
	if got := workgroups(count); got != 3907 {
		t.Errorf("preprocess workgroups = %d, want 3907", got)
	}
	if got := workgroups(padded / 2); got != 2048 {
		t.Errorf("sort workgroups = %d, want 2048", got)
	}
}

func TestSortStageUniformContents(t *testing.T) {
	padded := uint32(8)
	stages := splatcpu.SortStages(padded)
	for i, stage := range stages {
		buf := splatcpu.SortUniformBytes(padded, stage)
		if got := binary.LittleEndian.Uint32(buf[0:4]); got != padded {
			t.Errorf("pass %d element count = %d, want %d", i, got, padded)
		}
		if got := binary.LittleEndian.Uint32(buf[4:8]); got != stage.BlockSize {
			t.Errorf("pass %d block size = %d, want %d", i, got, stage.BlockSize)
		}
		if got := binary.LittleEndian.Uint32(buf[8:12]); got != stage.Dist {
			t.Errorf("pass %d distance = %d, want %d", i, got, stage.Dist)
		}
	}
}
