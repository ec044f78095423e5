package render

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"moyuren/internal/errcode"
)

// Defaults are the process-wide render settings templates inherit when their
// descriptor leaves scale or quality unset.
type Defaults struct {
	DeviceScaleFactor float64
	JPEGQuality       int
	// UseChinaCDN switches the templates' asset links to mainland-reachable
	// mirrors; exposed to templates as the use_china_cdn context key.
	UseChinaCDN bool
}

// ChromeRenderer rasterises HTML templates with a headless Chrome instance.
// Each Render spins up a fresh browser context; the exec allocator options
// are shared.
type ChromeRenderer struct {
	staticDir string
	now       func() time.Time
	defaults  Defaults
}

// NewChromeRenderer builds the production renderer. Zero default fields
// select scale 2.0 and JPEG quality 90.
func NewChromeRenderer(staticDir string, defaults Defaults, now func() time.Time) *ChromeRenderer {
	if defaults.DeviceScaleFactor <= 0 {
		defaults.DeviceScaleFactor = 2.0
	}
	if defaults.JPEGQuality <= 0 {
		defaults.JPEGQuality = 90
	}
	if now == nil {
		now = time.Now
	}
	return &ChromeRenderer{
		staticDir: staticDir,
		now:       now,
		defaults:  defaults,
	}
}

// Render evaluates the HTML template with the context, screenshots the full
// page at the descriptor's viewport and publishes the JPEG atomically.
func (r *ChromeRenderer) Render(ctx context.Context, tplCtx map[string]any, desc Descriptor) (string, error) {
	html, err := r.evalTemplate(tplCtx, desc)
	if err != nil {
		return "", err
	}

	// The page is written next to the artifacts so relative asset paths in
	// the template keep resolving.
	pageFile, err := os.CreateTemp(r.staticDir, desc.Name+".*.html")
	if err != nil {
		return "", errcode.Wrap(errcode.RenderTemplate, "write page", err)
	}
	pageName := pageFile.Name()
	defer os.Remove(pageName)

	if _, err := pageFile.Write(html); err != nil {
		pageFile.Close()
		return "", errcode.Wrap(errcode.RenderTemplate, "write page", err)
	}
	pageFile.Close()

	jpeg, err := r.screenshot(ctx, pageName, desc)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation is not a render failure; surface it as such.
			return "", ctx.Err()
		}
		return "", err
	}

	filename := Filename(desc.Name, r.now())
	if err := publish(r.staticDir, filename, jpeg); err != nil {
		return "", err
	}

	log.Info().Str("template", desc.Name).Str("file", filename).Int("bytes", len(jpeg)).Msg("rendered artifact")
	return filename, nil
}

func (r *ChromeRenderer) evalTemplate(tplCtx map[string]any, desc Descriptor) ([]byte, error) {
	tpl, err := template.New(filepath.Base(desc.Path)).Funcs(template.FuncMap{
		"json": func(v any) (template.JS, error) {
			raw, err := json.Marshal(v)
			return template.JS(raw), err
		},
	}).ParseFiles(desc.Path)
	if err != nil {
		return nil, errcode.Wrap(errcode.RenderTemplate, desc.Path, err)
	}

	data := make(map[string]any, len(tplCtx)+1)
	for k, v := range tplCtx {
		data[k] = v
	}
	data["use_china_cdn"] = r.defaults.UseChinaCDN

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, errcode.Wrap(errcode.RenderTemplate, desc.Path, err)
	}
	return buf.Bytes(), nil
}

func (r *ChromeRenderer) screenshot(ctx context.Context, pageFile string, desc Descriptor) ([]byte, error) {
	scale := desc.DeviceScaleFactor
	if scale <= 0 {
		scale = r.defaults.DeviceScaleFactor
	}
	quality := desc.JPEGQuality
	if quality <= 0 {
		quality = r.defaults.JPEGQuality
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-device-scale-factor", scale),
	)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	abs, err := filepath.Abs(pageFile)
	if err != nil {
		return nil, errcode.Wrap(errcode.RenderBrowser, "resolve page path", err)
	}

	var jpeg []byte
	err = chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(desc.ViewportWidth), int64(desc.ViewportHeight)),
		chromedp.Navigate("file://"+abs),
		chromedp.WaitReady("body"),
		chromedp.FullScreenshot(&jpeg, quality),
	)
	if err != nil {
		return nil, errcode.Wrap(errcode.RenderBrowser, "screenshot", err)
	}
	return jpeg, nil
}
