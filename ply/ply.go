// Package ply loads Gaussian splat scenes from binary PLY files in the
// layout splatting training pipelines emit: 62 little-endian float32
// properties per vertex covering position, normals, 48 spherical
// harmonics coefficients, opacity logit, log scale, and rotation.
package ply

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	splats "github.com/matthewjberger/gaussian-splats"
)

// Sentinel errors for malformed scene files. Loads are fatal on the
// first problem; there is no partial recovery.
var (
	// ErrBadHeader marks a file without a valid PLY header.
	ErrBadHeader = errors.New("ply: bad header")

	// ErrBadFormat marks a PLY that is not binary little-endian.
	ErrBadFormat = errors.New("ply: unsupported format")

	// ErrNoVertexElement marks a header without an "element vertex" line.
	ErrNoVertexElement = errors.New("ply: no vertex element")

	// ErrTruncated marks a body shorter than the vertex count requires.
	ErrTruncated = errors.New("ply: truncated body")
)

// floatsPerVertex is the property count of one vertex record: position
// (3), normals (3), SH DC (3), SH rest (45), opacity (1), scale (3),
// rotation (4).
const floatsPerVertex = 62

// Record float offsets within one vertex.
const (
	offPosition = 0
	offColorDC  = 6
	offOpacity  = 54
	offScale    = 55
	offRotation = 58
)

// maxHeaderBytes bounds the header scan so a binary blob without
// end_header fails fast instead of being parsed line by line forever.
const maxHeaderBytes = 64 * 1024

// maxPreallocVertices caps the slice capacity taken from the header
// vertex count. The count is untrusted until the body bytes back it up;
// larger scenes grow through append.
const maxPreallocVertices = 1 << 16

// LoadFile reads a scene from the file at path.
func LoadFile(path string) ([]splats.Gaussian, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ply: open %s: %w", path, err)
	}
	defer f.Close()

	gaussians, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("ply: load %s: %w", path, err)
	}
	return gaussians, nil
}

// Decode reads a scene from r. The header is parsed up to end_header
// (LF or CRLF line endings); the body must hold vertexCount records of
// 62 little-endian float32 values each. Unused properties (normals,
// higher SH bands) are skipped.
func Decode(r io.Reader) ([]splats.Gaussian, error) {
	br := bufio.NewReader(r)
	count, err := parseHeader(br)
	if err != nil {
		return nil, err
	}

	// Read record by record: a header lying about the vertex count must
	// surface as ErrTruncated, not size an allocation.
	gaussians := make([]splats.Gaussian, 0, min(count, maxPreallocVertices))
	var record [floatsPerVertex * 4]byte
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(br, record[:]); err != nil {
			return nil, fmt.Errorf("%w: vertex %d of %d: %v", ErrTruncated, i, count, err)
		}
		var g splats.Gaussian
		decodeVertex(record[:], &g)
		gaussians = append(gaussians, g)
	}
	return gaussians, nil
}

// parseHeader scans header lines up to end_header and returns the vertex
// count. Property lines are not validated individually; the fixed record
// size is what the splat training layout guarantees.
func parseHeader(br *bufio.Reader) (int, error) {
	magic, err := readHeaderLine(br)
	if err != nil {
		return 0, err
	}
	if magic != "ply" {
		return 0, fmt.Errorf("%w: missing ply magic", ErrBadHeader)
	}

	count := -1
	read := len(magic)
	for {
		line, err := readHeaderLine(br)
		if err != nil {
			return 0, err
		}
		read += len(line)
		if read > maxHeaderBytes {
			return 0, fmt.Errorf("%w: no end_header within %d bytes", ErrBadHeader, maxHeaderBytes)
		}

		switch {
		case line == "end_header":
			if count < 0 {
				return 0, ErrNoVertexElement
			}
			return count, nil

		case strings.HasPrefix(line, "format "):
			if line != "format binary_little_endian 1.0" {
				return 0, fmt.Errorf("%w: %q", ErrBadFormat, line)
			}

		case strings.HasPrefix(line, "element vertex "):
			n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "element vertex ")))
			if convErr != nil || n < 0 {
				return 0, fmt.Errorf("%w: bad vertex count %q", ErrBadHeader, line)
			}
			count = n
		}
	}
}

// readHeaderLine returns the next header line with the trailing LF or
// CRLF stripped.
func readHeaderLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// decodeVertex extracts the used properties of one 62-float record.
func decodeVertex(buf []byte, g *splats.Gaussian) {
	f32 := func(idx int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[idx*4 : idx*4+4]))
	}
	g.Position = [3]float32{f32(offPosition), f32(offPosition + 1), f32(offPosition + 2)}
	g.ColorDC = [3]float32{f32(offColorDC), f32(offColorDC + 1), f32(offColorDC + 2)}
	g.OpacityLogit = f32(offOpacity)
	g.LogScale = [3]float32{f32(offScale), f32(offScale + 1), f32(offScale + 2)}
	g.Rotation = [4]float32{f32(offRotation), f32(offRotation + 1), f32(offRotation + 2), f32(offRotation + 3)}
}
