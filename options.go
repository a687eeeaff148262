package sparsevolume

import (
	"log/slog"

	"github.com/gogpu/sparsevolume/internal/linear"
)

// Defaults.
const (
	// NumKLayers is the default number of depth layers kept per pixel.
	NumKLayers = 8

	// DefaultShadowMapSize is the default edge of the light-space k-buffer.
	DefaultShadowMapSize = 512

	// LightZNear and LightZFar bound the light projection by default.
	LightZNear = 0.1
	LightZFar  = 250
)

// DefaultLightOffset places the light relative to the bound center.
var DefaultLightOffset = linear.Vec3{10, 45, 75}

// Option configures a Volume during creation.
//
// Example:
//
//	v := sparsevolume.New(dev, reg,
//	    sparsevolume.WithShadowMapSize(1024),
//	    sparsevolume.WithKLayers(4))
type Option func(*options)

// options holds optional configuration for Volume creation.
type options struct {
	shadowMapSize uint32
	kLayers       uint32
	lightOffset   linear.Vec3
	zNear, zFar   float32
	logger        *slog.Logger
}

// defaultOptions returns the default volume options.
func defaultOptions() options {
	return options{
		shadowMapSize: DefaultShadowMapSize,
		kLayers:       NumKLayers,
		lightOffset:   DefaultLightOffset,
		zNear:         LightZNear,
		zFar:          LightZFar,
	}
}

// WithShadowMapSize sets the edge of the light-space k-buffer in texels.
// Zero keeps the default.
func WithShadowMapSize(size uint32) Option {
	return func(o *options) {
		if size > 0 {
			o.shadowMapSize = size
		}
	}
}

// WithKLayers sets the number of depth layers per pixel in both k-buffers.
// Zero keeps the default. The GPU composite reads at most 8 layers.
func WithKLayers(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.kLayers = n
		}
	}
}

// WithLightOffset sets the light position relative to the bound center.
func WithLightOffset(offset linear.Vec3) Option {
	return func(o *options) {
		o.lightOffset = offset
	}
}

// WithLightDepthRange sets the near and far planes of the light
// projection. Ranges with near >= far are ignored.
func WithLightDepthRange(near, far float32) Option {
	return func(o *options) {
		if near < far {
			o.zNear, o.zFar = near, far
		}
	}
}

// WithLogger gives the volume its own logger instead of the package one.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
