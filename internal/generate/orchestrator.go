// Package generate implements the single-flight generation orchestrator:
// one pipeline execution at a time, in-process and across processes, with a
// post-lock recheck that turns duplicate triggers into cheap no-ops.
package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"moyuren/internal/clock"
	"moyuren/internal/errcode"
	"moyuren/internal/fetch"
	"moyuren/internal/metrics"
	"moyuren/internal/render"
	"moyuren/internal/state"
)

const (
	// memLockWait bounds the in-process mutex acquisition.
	memLockWait = 100 * time.Millisecond
	// fileLockWait bounds the cross-process lock acquisition.
	fileLockWait = 5 * time.Second
	// fileLockPoll is the non-blocking retry interval.
	fileLockPoll = 50 * time.Millisecond
	// recheckWindow is the "someone else just generated" shortcut horizon.
	recheckWindow = 10 * time.Second

	lockFileName = ".generation.lock"
)

// Template pairs a render descriptor with its context options.
type Template struct {
	Descriptor render.Descriptor
	Options    render.TemplateOptions
}

// Orchestrator drives the fetch → compute → render → publish pipeline under
// the single-flight discipline. One instance per process.
type Orchestrator struct {
	clk      *clock.Clock
	fetcher  *fetch.Fetcher
	computer *render.Computer
	renderer render.Renderer
	store    *state.Store

	templates       map[string]Template
	defaultTemplate string

	lockPath string
	// mem is a 1-slot semaphore: the in-process mutex with a bounded wait.
	mem chan struct{}

	// cleanup runs detached after a successful generation; nil disables it.
	cleanup func()
}

// New wires an orchestrator. stateDir hosts the advisory lock file and the
// state file; it is created here so a fresh working directory can take the
// lock on the very first run.
func New(clk *clock.Clock, fetcher *fetch.Fetcher, computer *render.Computer,
	renderer render.Renderer, store *state.Store, stateDir string,
	templates map[string]Template, defaultTemplate string, cleanup func()) *Orchestrator {

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		log.Warn().Str("dir", stateDir).Err(err).Msg("state dir create failed")
	}

	mem := make(chan struct{}, 1)
	mem <- struct{}{}
	return &Orchestrator{
		clk:             clk,
		fetcher:         fetcher,
		computer:        computer,
		renderer:        renderer,
		store:           store,
		templates:       templates,
		defaultTemplate: defaultTemplate,
		lockPath:        filepath.Join(stateDir, lockFileName),
		mem:             mem,
		cleanup:         cleanup,
	}
}

// Generate runs one pipeline for the named template (empty selects the
// default) and returns the published filename. Concurrent invocations get
// GENERATION_5001 or, when another process finished within the last ten
// seconds, that run's filename.
func (o *Orchestrator) Generate(ctx context.Context, templateName string) (string, error) {
	if templateName == "" {
		templateName = o.defaultTemplate
	}
	tpl, ok := o.templates[templateName]
	if !ok {
		return "", errcode.New(errcode.APIUnknownTemplate, templateName)
	}

	// In-process mutex, bounded wait.
	select {
	case <-o.mem:
	case <-time.After(memLockWait):
		metrics.GenerationsTotal.WithLabelValues(templateName, "busy").Inc()
		return "", errcode.New(errcode.GenerationBusy, "another generation is in progress")
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { o.mem <- struct{}{} }()

	// Cross-process advisory lock. The flock handle is created and closed on
	// this goroutine so a cancelled waiter cannot leak the descriptor.
	fl := flock.New(o.lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, fileLockWait)
	locked, err := fl.TryLockContext(lockCtx, fileLockPoll)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Deadline means the holder kept the lock; anything else is an I/O
		// failure on the lock file itself, not contention.
		if !errors.Is(err, context.DeadlineExceeded) {
			metrics.GenerationsTotal.WithLabelValues(templateName, "failed").Inc()
			return "", errcode.Wrap(errcode.StorageLockFailed, o.lockPath, err)
		}
	}
	if !locked {
		metrics.GenerationsTotal.WithLabelValues(templateName, "busy").Inc()
		return "", errcode.New(errcode.GenerationBusy, "generation lock held by another process")
	}
	defer func() {
		if err := fl.Close(); err != nil {
			log.Warn().Err(err).Msg("generation lock release failed")
		}
	}()

	// Double-check: a sibling process may have finished moments ago.
	if filename, ok := o.store.FreshFilename(templateName, recheckWindow, o.clk.DisplayNow()); ok {
		log.Info().Str("template", templateName).Str("file", filename).
			Msg("state is fresh, skipping regeneration")
		metrics.GenerationsTotal.WithLabelValues(templateName, "skip").Inc()
		return filename, nil
	}

	filename, err := o.run(ctx, templateName, tpl)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(templateName, "failed").Inc()
		return "", err
	}
	metrics.GenerationsTotal.WithLabelValues(templateName, "ok").Inc()

	if o.cleanup != nil {
		go o.cleanup()
	}
	return filename, nil
}

// run executes the pipeline body. Caller holds both locks. A panicking
// pipeline stage surfaces as GENERATION_5002 instead of tearing down the
// process with both locks held.
func (o *Orchestrator) run(ctx context.Context, templateName string, tpl Template) (filename string, err error) {
	defer func() {
		if r := recover(); r != nil {
			filename = ""
			err = errcode.New(errcode.GenerationFailed, fmt.Sprintf("pipeline panic: %v", r))
		}
	}()

	timer := prometheus.NewTimer(metrics.GenerationDuration)
	defer timer.ObserveDuration()

	raw := o.fetcher.FetchAll(ctx, false)
	tplCtx := o.computer.Compute(raw, tpl.Options)

	filename, err = o.renderer.Render(ctx, tplCtx, tpl.Descriptor)
	if err != nil {
		return "", err
	}

	now := o.clk.DisplayNow()
	entry := state.Entry{
		Template:  templateName,
		Filename:  filename,
		Updated:   now.Format("2006-01-02T15:04:05-07:00"),
		UpdatedMS: now.UnixMilli(),
		Public:    o.publicFields(raw, tplCtx),
		Data:      tplCtx,
	}
	if err := o.store.Update(entry); err != nil {
		// The rendered JPEG stays on disk; the cleaner prunes orphans.
		return "", err
	}

	log.Info().Str("template", templateName).Str("file", filename).Msg("generation finished")
	return filename, nil
}

func (o *Orchestrator) publicFields(raw fetch.Result, tplCtx map[string]any) map[string]any {
	public := map[string]any{
		"date":              o.clk.BusinessDate(),
		"is_crazy_thursday": o.clk.IsThursday(),
	}
	if date, ok := tplCtx["date"].(map[string]any); ok {
		if weekday, ok := date["week_cn"]; ok {
			public["weekday"] = weekday
		}
		if lunar, ok := date["lunar_date"]; ok {
			public["lunar_date"] = lunar
		}
	}
	if raw.FunContent != nil {
		public["fun_content"] = raw.FunContent
	}
	if kfc, ok := tplCtx["kfc_content"]; ok {
		public["kfc_content"] = kfc
	}
	return public
}
