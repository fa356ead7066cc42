// File: pkg/app/transfer.go
package app

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
	"github.com/deploymenttheory/go-veracrypt/internal/volume"
)

// Extract copies the file or directory tree at src inside the volume to
// dest on the host filesystem. Directories are recreated; files stream
// without being held in memory.
func (e *Engine) Extract(v *volume.Volume, src, dest string) error {
	entry, err := v.Stat(src)
	if err != nil {
		return err
	}
	if !entry.IsDirectory {
		return e.extractFile(v, entry.Path, entry.Size, dest)
	}

	if err := e.fs.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dest, err)
	}
	entries, err := v.List(entry.Path)
	if err != nil {
		return err
	}
	for _, child := range entries {
		target := filepath.Join(dest, child.Name)
		if child.IsDirectory {
			if err := e.Extract(v, child.Path, target); err != nil {
				return err
			}
			continue
		}
		if err := e.extractFile(v, child.Path, child.Size, target); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) extractFile(v *volume.Volume, src string, size uint32, dest string) error {
	f, err := e.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer f.Close()

	e.ctx.Logf("extracting %s -> %s (%s)", src, dest, FormatSize(uint64(size)))
	if err := v.Stream(src, f); err != nil {
		return err
	}
	return f.Close()
}

// Put copies a host file or directory tree into the volume at dest.
// Parent directories inside the volume are created on demand.
func (e *Engine) Put(v *volume.Volume, src, dest string) error {
	info, err := e.fs.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if !info.IsDir() {
		if parent, _, serr := splitVolumePath(dest); serr == nil {
			if err := e.EnsureDirectory(v, parent); err != nil {
				return err
			}
		}
		return e.putFile(v, src, uint64(info.Size()), dest)
	}

	if err := e.EnsureDirectory(v, dest); err != nil {
		return err
	}
	children, err := afero.ReadDir(e.fs, src)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", src, err)
	}
	for _, child := range children {
		if err := e.Put(v, filepath.Join(src, child.Name()), path.Join(dest, child.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) putFile(v *volume.Volume, src string, size uint64, dest string) error {
	f, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	e.ctx.Logf("storing %s -> %s (%s)", src, dest, FormatSize(size))
	update := ProgressUpdate{Message: dest, Total: int64(size), StartedAt: time.Now()}
	err = v.WriteStream(dest, f, size, func(written uint64) {
		update.Completed = int64(written)
		e.ctx.Progress(dest, update.Percent())
	})
	if err != nil {
		return err
	}
	e.ctx.Logf("stored %s at %s/s", dest, FormatSize(uint64(update.Rate())))
	return nil
}

// EnsureDirectory creates the directory at p inside the volume, together
// with any missing parents.
func (e *Engine) EnsureDirectory(v *volume.Volume, p string) error {
	entry, err := v.Stat(p)
	if err == nil {
		if !entry.IsDirectory {
			return fmt.Errorf("%w: %s", types.ErrNotADirectory, p)
		}
		return nil
	}

	parent, name, serr := splitVolumePath(p)
	if serr != nil {
		return nil // the root always exists
	}
	if err := e.EnsureDirectory(v, parent); err != nil {
		return err
	}
	return v.CreateDirectory(parent, name)
}

func splitVolumePath(p string) (parent, name string, err error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", "", fmt.Errorf("%w: root has no parent", types.ErrInvalidArgument)
	}
	return path.Dir(clean), path.Base(clean), nil
}
