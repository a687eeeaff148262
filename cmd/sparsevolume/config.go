package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/sparsevolume"
)

// config is the command configuration. A TOML file supplies it first;
// flags set on the command line override the file.
type config struct {
	Width         uint32     `toml:"width"`
	Height        uint32     `toml:"height"`
	Scale         float64    `toml:"scale"`
	Mesh          string     `toml:"mesh"`
	Backend       string     `toml:"backend"`
	Output        string     `toml:"output"`
	KBufferEXR    string     `toml:"kbuffer_exr"`
	ShadowMapSize uint32     `toml:"shadow_map_size"`
	KLayers       uint32     `toml:"k_layers"`
	Eye           [3]float32 `toml:"eye"`
	Verbose       bool       `toml:"verbose"`
}

func defaultConfig() config {
	return config{
		Width:         800,
		Height:        600,
		Scale:         1,
		Output:        "sparsevolume.png",
		ShadowMapSize: sparsevolume.DefaultShadowMapSize,
		KLayers:       sparsevolume.NumKLayers,
		Eye:           [3]float32{0, 0, -5},
	}
}

// loadConfig decodes a TOML file over cfg. Unknown keys are an error.
func loadConfig(path string, cfg *config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config %s: %s", path, strict.String())
		}
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func (c *config) validate() error {
	switch {
	case c.Width == 0 || c.Height == 0:
		return fmt.Errorf("invalid size %dx%d", c.Width, c.Height)
	case c.Scale <= 0:
		return fmt.Errorf("invalid scale %g", c.Scale)
	case c.KLayers == 0:
		return errors.New("k_layers must be positive")
	case c.ShadowMapSize == 0:
		return errors.New("shadow_map_size must be positive")
	case c.Output == "":
		return errors.New("no output file")
	}
	return nil
}

// eyeFlag parses "x,y,z".
type eyeFlag struct{ v *[3]float32 }

func (e eyeFlag) String() string {
	if e.v == nil {
		return ""
	}
	return fmt.Sprintf("%g,%g,%g", e.v[0], e.v[1], e.v[2])
}

func (e eyeFlag) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return fmt.Errorf("eye %q: want x,y,z", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("eye %q: %w", s, err)
		}
		e.v[i] = float32(f)
	}
	return nil
}

// parseArgs applies the config file named by -config, then every flag set
// in args.
func parseArgs(args []string) (config, error) {
	cfg := defaultConfig()
	var flags config

	fs := flag.NewFlagSet("sparsevolume", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	width := fs.Uint("width", uint(cfg.Width), "render width")
	height := fs.Uint("height", uint(cfg.Height), "render height")
	fs.Float64Var(&flags.Scale, "scale", cfg.Scale, "PNG output scale")
	fs.StringVar(&flags.Mesh, "mesh", "", "OBJ mesh file (default: unit cube)")
	fs.StringVar(&flags.Backend, "backend", "", "device backend: wgpu or soft (default: best available)")
	fs.StringVar(&flags.Output, "output", cfg.Output, "output PNG file")
	fs.StringVar(&flags.KBufferEXR, "kbuffer-exr", "", "write the view-space k-buffer layers to EXR files with this prefix")
	shadow := fs.Uint("shadow-map-size", uint(cfg.ShadowMapSize), "light-space k-buffer size")
	layers := fs.Uint("k-layers", uint(cfg.KLayers), "depth layers per pixel")
	flags.Eye = cfg.Eye
	fs.Var(eyeFlag{&flags.Eye}, "eye", "camera position x,y,z")
	fs.BoolVar(&flags.Verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Width = uint32(*width)
		case "height":
			cfg.Height = uint32(*height)
		case "scale":
			cfg.Scale = flags.Scale
		case "mesh":
			cfg.Mesh = flags.Mesh
		case "backend":
			cfg.Backend = flags.Backend
		case "output":
			cfg.Output = flags.Output
		case "kbuffer-exr":
			cfg.KBufferEXR = flags.KBufferEXR
		case "shadow-map-size":
			cfg.ShadowMapSize = uint32(*shadow)
		case "k-layers":
			cfg.KLayers = uint32(*layers)
		case "eye":
			cfg.Eye = flags.Eye
		case "v":
			cfg.Verbose = flags.Verbose
		}
	})
	return cfg, cfg.validate()
}
