package render

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"context"

	"moyuren/internal/errcode"
)

// Descriptor identifies the template being rendered and its raster settings.
type Descriptor struct {
	Name              string
	Path              string // HTML template file
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64
	JPEGQuality       int
}

// Renderer turns a computed context into a published JPEG and returns its
// basename. Implementations must publish atomically (temp file + rename into
// the static dir) and remove the temp file on any failure.
type Renderer interface {
	Render(ctx context.Context, tplCtx map[string]any, desc Descriptor) (string, error)
}

// Filename builds the canonical artifact name for a template at an instant.
func Filename(templateName string, at time.Time) string {
	return fmt.Sprintf("%s_%s.jpg", templateName, at.Format("20060102_150405"))
}

// publish writes the JPEG bytes atomically into staticDir under filename.
func publish(staticDir, filename string, jpeg []byte) error {
	if err := os.MkdirAll(staticDir, 0o755); err != nil {
		return errcode.Wrap(errcode.RenderSaveFailed, "create static dir", err)
	}

	target := filepath.Join(staticDir, filename)
	tmp, err := os.CreateTemp(staticDir, filename+".*.tmp")
	if err != nil {
		return errcode.Wrap(errcode.RenderSaveFailed, "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(jpeg); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errcode.Wrap(errcode.RenderSaveFailed, "write image", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errcode.Wrap(errcode.RenderSaveFailed, "close image", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return errcode.Wrap(errcode.RenderSaveFailed, "publish image", err)
	}
	return nil
}
