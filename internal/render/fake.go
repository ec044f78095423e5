package render

import (
	"context"
	"time"
)

// FakeRenderer writes a deterministic byte payload instead of driving a
// browser. Used by orchestrator and HTTP tests.
type FakeRenderer struct {
	StaticDir string
	Now       func() time.Time

	// Err, when set, is returned instead of rendering.
	Err error
	// Calls counts Render invocations.
	Calls int
}

// Render publishes a placeholder artifact with the canonical filename.
func (f *FakeRenderer) Render(ctx context.Context, tplCtx map[string]any, desc Descriptor) (string, error) {
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	filename := Filename(desc.Name, now())
	if err := publish(f.StaticDir, filename, []byte("fake-jpeg:"+desc.Name)); err != nil {
		return "", err
	}
	return filename, nil
}
