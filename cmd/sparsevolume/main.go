// Command sparsevolume renders one frame of a mesh with depth-peeled
// k-buffers and writes it as PNG.
//
// Usage:
//
//	sparsevolume -mesh bunny.obj -width 1280 -height 720 -output bunny.png
//	sparsevolume -config frame.toml -kbuffer-exr layers
//
// The config file holds the same settings as the flags:
//
//	width = 1280
//	height = 720
//	mesh = "bunny.obj"
//	backend = "wgpu"
//	k_layers = 8
//	eye = [0.0, 1.0, -4.0]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"

	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/sparsevolume"
	"github.com/gogpu/sparsevolume/backend"
	"github.com/gogpu/sparsevolume/backend/soft"
	"github.com/gogpu/sparsevolume/gpucore"
	"github.com/gogpu/sparsevolume/internal/linear"
	"github.com/gogpu/sparsevolume/mesh"
	"github.com/gogpu/sparsevolume/pipeline"
	"github.com/gogpu/sparsevolume/resource"
)

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("sparsevolume: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("sparsevolume: %v", err)
	}
}

func run(cfg config) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	sparsevolume.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	name, dev, err := openDevice(cfg.Backend)
	if err != nil {
		return err
	}
	if c, ok := dev.(io.Closer); ok {
		defer c.Close()
	}

	var regOpts []pipeline.Option
	if _, ok := dev.(*soft.Device); ok {
		// The soft device runs its reference programs by entry point.
		regOpts = append(regOpts, pipeline.WithCompiler(func(string) ([]byte, error) { return nil, nil }))
	}
	reg := pipeline.NewRegistry(regOpts...)
	if err := reg.Load(dev); err != nil {
		return err
	}

	v := sparsevolume.New(dev, reg,
		sparsevolume.WithShadowMapSize(cfg.ShadowMapSize),
		sparsevolume.WithKLayers(cfg.KLayers))
	defer v.Close()
	if cfg.Mesh != "" {
		err = v.Init(cfg.Width, cfg.Height, cfg.Mesh)
	} else {
		err = v.InitMesh(cfg.Width, cfg.Height, mesh.UnitCube())
	}
	if err != nil {
		return err
	}

	out, err := resource.NewTexture2D(dev, resource.TextureConfig{
		Label:  "output",
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: gpucore.FormatR8G8B8A8Unorm,
		Bind:   gpucore.BindUnorderedAccess | gpucore.BindShaderResource,
	})
	if err != nil {
		return err
	}
	defer out.Close()
	wv, err := out.WriteView(0)
	if err != nil {
		return err
	}

	eye := linear.Vec3(cfg.Eye)
	view := linear.LookAtLH(eye, v.Bound().Center, linear.Vec3{0, 1, 0})
	proj := linear.PerspectiveFovLH(math.Pi/4, float32(cfg.Width)/float32(cfg.Height), 0.1, 100)

	ctx := dev.ImmediateContext()
	ctx.SetViewports(gpucore.NewViewport(cfg.Width, cfg.Height))
	v.UpdateFrame(eye, view.Mul(proj))
	if err := v.Render(wv); err != nil {
		return err
	}

	if err := writePNG(dev, out, cfg.Output, cfg.Scale); err != nil {
		return err
	}
	if cfg.KBufferEXR != "" {
		if err := writeKBufferEXR(dev, v.KBuffer(), cfg.KBufferEXR); err != nil {
			return err
		}
	}
	log.Printf("Rendered %dx%d on %s to %s\n", cfg.Width, cfg.Height, name, cfg.Output)
	return nil
}

func openDevice(name string) (string, gpucore.Device, error) {
	if name == "" {
		return backend.Default()
	}
	dev, err := backend.Get(name)
	if err != nil {
		return "", nil, fmt.Errorf("backend %s: %w", name, err)
	}
	return name, dev, nil
}
