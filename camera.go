package splats

// Camera holds the view and projection transforms for one frame.
// Both matrices are column-major, the layout WGSL mat4x4 uses. The
// renderer derives screen focal lengths from the projection diagonal:
// focal_x = proj[0][0] * width/2, focal_y = proj[1][1] * height/2.
//
// Building the matrices (look-at, perspective) is the caller's job;
// windowing and input handling live outside this package.
type Camera struct {
	View [16]float32
	Proj [16]float32
}
