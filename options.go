package splats

import "github.com/matthewjberger/gaussian-splats/internal/splatcpu"

// Option configures a Renderer during creation.
//
// The culling bounds are empirical: the defaults are the values splat
// renderers converged on in practice, and the options exist for scenes
// that need different ones.
//
// Example:
//
//	r := splats.NewRenderer(1280, 720, splats.WithFrustumMargin(1.5))
type Option func(*config)

// config holds optional Renderer configuration.
type config struct {
	params splatcpu.Params
}

func defaultConfig() config {
	return config{params: splatcpu.DefaultParams()}
}

// WithNearEpsilon sets the near-plane culling epsilon: Gaussians with
// view depth >= -epsilon are excluded before projection.
func WithNearEpsilon(epsilon float32) Option {
	return func(c *config) {
		c.params.NearEpsilon = epsilon
	}
}

// WithFrustumMargin sets the NDC frustum margin. Splat centers with
// |ndc| up to the margin survive, so splats just off screen still
// contribute their visible tail. 1.0 culls exactly at the screen edge.
func WithFrustumMargin(margin float32) Option {
	return func(c *config) {
		c.params.FrustumMargin = margin
	}
}

// WithRadiusLimit sets the maximum splat radius in pixels. Splats
// projecting larger than this are excluded; near-degenerate covariances
// otherwise produce screen-filling quads.
func WithRadiusLimit(limit float32) Option {
	return func(c *config) {
		c.params.RadiusLimit = limit
	}
}
