// Package controller implements C9: sequencing the index, mask, and mosaic
// stages against shared config, threading one cancelable context through
// every stage, and reporting a run summary for each action.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/config"
	"github.com/GispoCoding/CFSI/internal/indexer"
	"github.com/GispoCoding/CFSI/internal/logging"
	"github.com/GispoCoding/CFSI/internal/maskgen"
	"github.com/GispoCoding/CFSI/internal/mosaic"
	"github.com/GispoCoding/CFSI/internal/planner"
)

// Orchestrator runs the externally delegated actions (build/start/stop/
// clean/deploy/destroy/log) that this pipeline does not implement itself —
// container lifecycle and infra concerns outside the Go process's purview.
type Orchestrator interface {
	Run(ctx context.Context, action string) error
}

// Action is one recognized CLI token, per spec §6.
type Action string

const (
	ActionBuild   Action = "build"
	ActionStart   Action = "start"
	ActionInit    Action = "init"
	ActionStop    Action = "stop"
	ActionClean   Action = "clean"
	ActionIndex   Action = "index"
	ActionMask    Action = "mask"
	ActionMosaic  Action = "mosaic"
	ActionDeploy  Action = "deploy"
	ActionDestroy Action = "destroy"
	ActionLog     Action = "log"
)

var externalActions = map[Action]bool{
	ActionBuild: true, ActionStart: true, ActionStop: true, ActionClean: true,
	ActionDeploy: true, ActionDestroy: true, ActionLog: true,
}

// RunSummary is the per-action report surfaced to slog and, when the
// diagnostics HTTP server is running, the in-memory run registry.
type RunSummary struct {
	ID        string
	Action    Action
	Started   time.Time
	Elapsed   time.Duration
	Processed int
	Skipped   int
	Errored   int
	BytesMoved int64
	Err       string
}

// MaskBackendSet wires each configured mask product name to its backend, so
// the controller can run "mask" against every product in
// masks.s2cloudless_masks / masks.fmask_masks without hardcoding which ones
// are enabled.
type MaskBackendSet struct {
	S2Cloudless maskgen.Backend
	Fmask       maskgen.Backend
}

// Registry is an in-memory store of recent run summaries, served read-only
// by the diagnostics HTTP server.
type Registry struct {
	runs map[string]RunSummary
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runs: map[string]RunSummary{}}
}

func (r *Registry) record(s RunSummary) {
	if r == nil {
		return
	}
	r.runs[s.ID] = s
}

// Get returns the summary for a run id, or false if unknown.
func (r *Registry) Get(id string) (RunSummary, bool) {
	if r == nil {
		return RunSummary{}, false
	}
	s, ok := r.runs[id]
	return s, ok
}

// Controller sequences index/mask/mosaic runs per the CLI action list.
type Controller struct {
	Config       config.Config
	Catalog      catalog.Catalog
	Indexer      *indexer.Indexer
	Planner      planner.Planner
	MaskBackends MaskBackendSet
	Mosaic       *mosaic.Creator
	Orchestrator Orchestrator
	Registry     *Registry
}

// New returns a Controller wiring the given collaborators.
func New(cfg config.Config, cat catalog.Catalog, ix *indexer.Indexer, p planner.Planner, backends MaskBackendSet, mc *mosaic.Creator, orch Orchestrator, reg *Registry) *Controller {
	return &Controller{
		Config: cfg, Catalog: cat, Indexer: ix, Planner: p,
		MaskBackends: backends, Mosaic: mc, Orchestrator: orch, Registry: reg,
	}
}

// RunAll executes every action in order, stopping at the first error, per
// §4.9's partial order index -> mask -> mosaic.
func (c *Controller) RunAll(ctx context.Context, actions []Action) error {
	for _, action := range actions {
		if err := c.RunOne(ctx, action); err != nil {
			return fmt.Errorf("action %s: %w", action, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// RunOne dispatches a single action and records its RunSummary.
func (c *Controller) RunOne(ctx context.Context, action Action) error {
	logger := logging.Component(ctx, "controller")
	runID := uuid.NewString()
	started := time.Now()

	summary := RunSummary{ID: runID, Action: action, Started: started}
	defer func() {
		summary.Elapsed = time.Since(started)
		c.Registry.record(summary)
		logger.Info("run complete", "id", runID, "action", action,
			"elapsed", summary.Elapsed, "processed", summary.Processed,
			"skipped", summary.Skipped, "errored", summary.Errored,
			"bytesMoved", humanize.Bytes(uint64(summary.BytesMoved)))
	}()

	if externalActions[action] {
		if c.Orchestrator == nil {
			err := fmt.Errorf("no orchestrator configured for external action %q", action)
			summary.Err = err.Error()
			return err
		}
		if err := c.Orchestrator.Run(ctx, string(action)); err != nil {
			summary.Err = err.Error()
			return err
		}
		summary.Processed = 1
		return nil
	}

	switch action {
	case ActionInit:
		pg, ok := c.Catalog.(*catalog.PGCatalog)
		if !ok {
			err := fmt.Errorf("init requires a PGCatalog, got %T", c.Catalog)
			summary.Err = err.Error()
			return err
		}
		if err := pg.InitSchema(ctx); err != nil {
			summary.Err = err.Error()
			return err
		}
		summary.Processed = 1
		return nil

	case ActionIndex:
		return c.runIndex(ctx, &summary)

	case ActionMask:
		return c.runMask(ctx, &summary)

	case ActionMosaic:
		return c.runMosaic(ctx, &summary)

	default:
		err := fmt.Errorf("unrecognized action %q", action)
		summary.Err = err.Error()
		return err
	}
}

func (c *Controller) runIndex(ctx context.Context, summary *RunSummary) error {
	icfg := indexer.Config{
		Buckets:    c.Config.Index.S2Index.S3Buckets,
		Grids:      c.Config.Index.S2Index.Grids,
		Years:      c.Config.Index.S2Index.Years,
		Months:     c.Config.Index.S2Index.Months,
		Workers:    c.Config.Index.S2Index.Workers,
		ExcludeB10: c.Config.Masks.ExcludeB10(),
	}
	result, err := c.Indexer.Crawl(ctx, icfg)
	summary.Processed = result.Added
	summary.Skipped = result.Skipped
	summary.Errored = result.Errored
	if err != nil {
		summary.Err = err.Error()
	}
	return err
}

// runMask runs §4.4 once per enabled mask product. A per-product failure
// doesn't abort the other product's run; their results are summed into the
// single RunSummary for the "mask" action.
func (c *Controller) runMask(ctx context.Context, summary *RunSummary) error {
	var firstErr error

	if c.Config.Masks.S2Cloudless.Generate && c.MaskBackends.S2Cloudless != nil {
		drv := maskgen.New(c.Catalog, c.Indexer, c.Planner, c.MaskBackends.S2Cloudless)
		result, err := drv.Run(ctx, maskgen.Config{
			MaxIterations:     c.Config.Masks.S2Cloudless.MaxIterations,
			MaxCloudThreshold: c.Config.Masks.MaxCloudThreshold,
			MinCloudThreshold: c.Config.Masks.MinCloudThreshold,
		})
		summary.Processed += len(result.Produced)
		summary.Skipped += result.Skipped
		summary.Errored += result.Errored
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.Config.Masks.Fmask.Generate && c.MaskBackends.Fmask != nil {
		drv := maskgen.New(c.Catalog, c.Indexer, c.Planner, c.MaskBackends.Fmask)
		result, err := drv.Run(ctx, maskgen.Config{
			MaxIterations:     c.Config.Masks.Fmask.MaxIterations,
			MaxCloudThreshold: c.Config.Masks.MaxCloudThreshold,
			MinCloudThreshold: c.Config.Masks.MinCloudThreshold,
		})
		summary.Processed += len(result.Produced)
		summary.Skipped += result.Skipped
		summary.Errored += result.Errored
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		summary.Err = firstErr.Error()
	}
	return firstErr
}

// runMosaic runs §4.7 once per configured (product, date) pair, per the
// dual-mosaic-run supplemented feature: products failing independently
// don't abort the others.
func (c *Controller) runMosaic(ctx context.Context, summary *RunSummary) error {
	var firstErr error
	for _, product := range c.Config.Mosaic.Products {
		for _, dateStr := range c.Config.Mosaic.Dates {
			endDate, err := parseMosaicDate(dateStr)
			if err != nil {
				summary.Errored++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			req := mosaic.Request{
				MaskProduct: product,
				EndDate:     endDate,
				WindowDays:  c.Config.Mosaic.Range,
				OutputBands: c.Config.Mosaic.OutputBands,
				Recentness:  c.Config.Mosaic.Recentness,
				L1CBucket:   firstOr(c.Config.Index.S2Index.S3Buckets, 0, "sentinel-s2-l1c"),
				L2ABucket:   firstOr(c.Config.Index.S2Index.S3Buckets, 1, "sentinel-s2-l2a"),
			}
			if _, err := c.Mosaic.Create(ctx, req); err != nil {
				summary.Errored++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			summary.Processed++
		}
	}
	if firstErr != nil {
		summary.Err = firstErr.Error()
	}
	return firstErr
}

func firstOr(s []string, idx int, fallback string) string {
	if idx < len(s) {
		return s[idx]
	}
	return fallback
}

func parseMosaicDate(s string) (time.Time, error) {
	if s == "today" {
		return timeNow().Truncate(24 * time.Hour), nil
	}
	return time.Parse("2006-01-02", s)
}

// timeNow is a package var so tests can pin "today" without depending on
// wall-clock time.
var timeNow = time.Now
