// Package sysfs provides the privileged read/write capabilities used to talk
// to kernel control files. Callers depend on the small Reader, Writer and
// Prober interfaces; FS and ShellWriter are the two concrete backends.
package sysfs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Writer writes a raw value into a control file.
type Writer interface {
	Write(ctx context.Context, path, value string) error
}

// Reader reads the first line of a control file.
type Reader interface {
	ReadFirstLine(ctx context.Context, path string) (string, error)
}

// Prober reports whether a control file exists.
type Prober interface {
	Exists(path string) bool
}

// ReadWriter is the full capability set a binding needs.
type ReadWriter interface {
	Reader
	Writer
	Prober
}

// FS accesses control files through an afero filesystem.
// Production uses the OS filesystem, optionally rooted below a prefix
// (useful for pointing at a captured sysfs tree); tests use a MemMapFs.
type FS struct {
	fs afero.Fs
}

// New wraps an arbitrary afero filesystem.
func New(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// NewOS returns an FS backed by the OS filesystem. A root other than "/"
// prefixes every path.
func NewOS(root string) *FS {
	root = filepath.Clean(root)
	if root == "" || root == "." || root == "/" {
		return New(afero.NewOsFs())
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), root))
}

func (f *FS) Exists(path string) bool {
	ok, err := afero.Exists(f.fs, path)
	return err == nil && ok
}

// Write truncates and writes value. Control files are never created: a
// missing node is a write failure.
func (f *FS) Write(ctx context.Context, path, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := f.fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := io.WriteString(file, value); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func (f *FS) ReadFirstLine(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := f.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()
	return firstLine(file)
}

func firstLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if sc.Scan() {
		return strings.TrimRight(sc.Text(), "\r\n"), nil
	}
	return "", sc.Err()
}
