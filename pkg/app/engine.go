// File: pkg/app/engine.go
package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/deploymenttheory/go-veracrypt/internal/device"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
	"github.com/deploymenttheory/go-veracrypt/internal/volume"
)

// Credentials carries everything needed to derive the header key.
type Credentials struct {
	Password []byte
	PIM      int
	Keyfiles []string
}

// Engine is the facade the CLI talks to: it owns the host filesystem
// handle and the engine configuration, and turns container paths into
// mounted volumes.
type Engine struct {
	ctx *Context
	fs  afero.Fs
	cfg *device.EngineConfig
}

// NewEngine builds an engine against the host filesystem, loading the
// configuration file and environment overrides.
func NewEngine(ctx *Context) (*Engine, error) {
	cfg, err := device.LoadEngineConfig()
	if err != nil {
		return nil, err
	}
	return NewEngineWithFs(ctx, afero.NewOsFs(), cfg), nil
}

// NewEngineWithFs builds an engine over an explicit filesystem and
// configuration. Tests use it with an in-memory filesystem.
func NewEngineWithFs(ctx *Context, fs afero.Fs, cfg *device.EngineConfig) *Engine {
	if cfg == nil {
		cfg = device.DefaultEngineConfig()
	}
	return &Engine{ctx: ctx, fs: fs, cfg: cfg}
}

// Config exposes the effective engine configuration.
func (e *Engine) Config() *device.EngineConfig {
	return e.cfg
}

func (e *Engine) mountParams(creds Credentials) volume.MountParams {
	return volume.MountParams{
		Password:  creds.Password,
		PIM:       creds.PIM,
		Keyfiles:  creds.Keyfiles,
		KeyfileFs: e.fs,
		Config:    e.cfg,
	}
}

// OpenContainer mounts an existing container file.
func (e *Engine) OpenContainer(path string, creds Credentials) (*volume.Volume, error) {
	dev, err := device.OpenFile(e.fs, path)
	if err != nil {
		return nil, err
	}
	v, err := volume.Open(dev, e.mountParams(creds))
	if err != nil {
		dev.Close()
		return nil, err
	}
	e.ctx.Logf("mounted %s", path)
	return v, nil
}

// CreateContainer creates a container file of totalSize bytes, formats it,
// and returns it mounted.
func (e *Engine) CreateContainer(path string, totalSize int64, label string, creds Credentials) (*volume.Volume, error) {
	dev, err := device.CreateFile(e.fs, path, totalSize)
	if err != nil {
		return nil, err
	}
	v, err := volume.Create(dev, e.mountParams(creds), label)
	if err != nil {
		dev.Close()
		e.fs.Remove(path)
		return nil, err
	}
	e.ctx.Logf("created %s (%d bytes)", path, totalSize)
	return v, nil
}

// ParseSize turns a human size like "10M", "1G", or "524288" into bytes.
func ParseSize(s string) (int64, error) {
	t := strings.TrimSpace(strings.ToUpper(s))
	t = strings.TrimSuffix(t, "IB")
	t = strings.TrimSuffix(t, "B")

	mult := int64(1)
	switch {
	case strings.HasSuffix(t, "K"):
		mult, t = 1<<10, strings.TrimSuffix(t, "K")
	case strings.HasSuffix(t, "M"):
		mult, t = 1<<20, strings.TrimSuffix(t, "M")
	case strings.HasSuffix(t, "G"):
		mult, t = 1<<30, strings.TrimSuffix(t, "G")
	case strings.HasSuffix(t, "T"):
		mult, t = 1<<40, strings.TrimSuffix(t, "T")
	}

	n, err := strconv.ParseInt(t, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: size %q is not a positive byte count", types.ErrInvalidArgument, s)
	}
	if n > (1<<63-1)/mult {
		return 0, fmt.Errorf("%w: size %q overflows", types.ErrInvalidArgument, s)
	}
	return n * mult, nil
}

// FormatSize renders a byte count with a binary unit suffix.
func FormatSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
