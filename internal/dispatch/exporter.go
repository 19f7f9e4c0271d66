package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// Exporter writes an artifact to path. The host application's scene export is
// one implementation; cmdport ships file and stream exporters.
type Exporter interface {
	Export(ctx context.Context, fs afero.Fs, path string) error
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx context.Context, fs afero.Fs, path string) error

// Export calls f.
func (f ExporterFunc) Export(ctx context.Context, fs afero.Fs, path string) error {
	return f(ctx, fs, path)
}

// FileExporter copies an existing file. Source is read from the OS
// filesystem regardless of the destination filesystem.
type FileExporter struct {
	Source string
}

// Export copies Source to path.
func (e FileExporter) Export(ctx context.Context, fs afero.Fs, path string) error {
	src, err := os.Open(e.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	return ReaderExporter{Reader: src}.Export(ctx, fs, path)
}

// ReaderExporter streams Reader to path.
type ReaderExporter struct {
	Reader io.Reader
}

// Export writes the reader's content to path.
func (e ReaderExporter) Export(ctx context.Context, fs afero.Fs, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}

	if _, err := io.Copy(dst, e.Reader); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return dst.Close()
}
