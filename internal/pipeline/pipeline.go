// Package pipeline runs the ground-truth stages over a data tree: merge the
// reference tiles, rasterize each flood map, aggregate each area of interest
// and publish the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/observability"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/raster"
)

// Mosaicker merges reference tiles into one raster.
type Mosaicker interface {
	Merge(ctx context.Context, tiles []string, out string) error
}

// RasterStore reads reference rasters and reads and writes labeled rasters.
type RasterStore interface {
	ReadReference(path string, band int) (raster.Reference, error)
	ReadLabeled(path string) (*raster.Labeled, error)
	WriteLabeled(path string, l *raster.Labeled) error
}

// FloodMapSource loads the vector artifacts of an observation.
type FloodMapSource interface {
	FloodMap(key domain.ObservationKey) (domain.FloodMap, error)
	Metadata(key domain.ObservationKey) (domain.ObservationMetadata, error)
}

// Registry looks up activations by event code.
type Registry interface {
	Lookup(code domain.EventID) (domain.EventActivation, bool)
}

// Publisher uploads an aggregated raster.
type Publisher interface {
	Publish(ctx context.Context, asset domain.PublishedAsset) (domain.PublishedAsset, error)
}

// Notifier announces a published asset.
type Notifier interface {
	Notify(ctx context.Context, asset domain.PublishedAsset) error
}

// Deps are the adapters a pipeline drives. Notifier, Reprojector and
// Progress are optional.
type Deps struct {
	Rasters     RasterStore
	Mosaicker   Mosaicker
	FloodMaps   FloodMapSource
	Reprojector raster.Reprojector
	Registry    Registry
	Publisher   Publisher
	Notifier    Notifier
	Progress    Progress
}

// Pipeline runs passes over one data tree.
type Pipeline struct {
	opts     Options
	deps     Deps
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	progress Progress

	ready atomic.Bool
	mu    sync.Mutex
	last  *Summary
}

// New creates a Pipeline with the given options, adapters and observability.
func New(opts Options, deps Deps, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		opts:     opts.withDefaults(),
		deps:     deps,
		logger:   logger,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
		progress: deps.Progress,
	}
	if p.progress == nil {
		p.progress = noProgress{}
	}
	return p
}

// SetClock swaps the time source, for tests.
func (p *Pipeline) SetClock(c clockwork.Clock) { p.clock = c }

// CheckReadiness returns nil once a pass has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a pass yet")
	}
	return nil
}

// LastStatus returns the summary of the last completed pass, or nil.
func (p *Pipeline) LastStatus() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	return p.last
}

func stageIndex(stage string) int {
	for i, s := range config.AllStages {
		if s == stage {
			return i
		}
	}
	return len(config.AllStages)
}

// Run executes one pass of the enabled stages in order. Unit failures are
// recorded in the summary; the error is reserved for faults that make a
// whole stage impossible and for cancellation.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{StartedAt: p.clock.Now()}
	p.logger.Info("pass started", "stages", p.opts.Stages, "workers", p.opts.Workers)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	err := p.runStages(ctx, sum)
	sum.FinishedAt = p.clock.Now()
	if err == nil {
		p.mu.Lock()
		p.last = sum
		p.mu.Unlock()
		p.ready.Store(true)
		p.metrics.LastRun.Set(float64(sum.FinishedAt.Unix()))
	}
	sum.Log(p.logger)
	return sum, err
}

func (p *Pipeline) runStages(ctx context.Context, sum *Summary) error {
	stages := map[string]func(context.Context, *Summary) error{
		config.StageMerge:     p.mergeStage,
		config.StageRasterize: p.rasterizeStage,
		config.StageAggregate: p.aggregateStage,
		config.StagePublish:   p.publishStage,
	}
	for _, name := range p.opts.Stages {
		run, ok := stages[name]
		if !ok {
			return fmt.Errorf("unknown stage %q", name)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.logger.Info("stage started", "stage", name)
		if err := run(ctx, sum); err != nil {
			return fmt.Errorf("%s stage: %w", name, err)
		}
	}
	return nil
}

// Schedule yields the start of the next pass after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

// RunEvery runs passes until ctx is cancelled, waiting interval between the
// end of one pass and the start of the next. A pass that fails outright is
// logged and retried at the next tick.
func (p *Pipeline) RunEvery(ctx context.Context, interval time.Duration) error {
	return p.loop(ctx, func(time.Time) time.Duration { return interval })
}

// RunOnSchedule runs a pass immediately, then at every time sched yields
// until ctx is cancelled.
func (p *Pipeline) RunOnSchedule(ctx context.Context, sched Schedule) error {
	return p.loop(ctx, func(now time.Time) time.Duration { return sched.Next(now).Sub(now) })
}

func (p *Pipeline) loop(ctx context.Context, wait func(now time.Time) time.Duration) error {
	for {
		if _, err := p.Run(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("pass aborted", "error", err)
		}
		d := max(wait(p.clock.Now()), 0)
		p.logger.Info("waiting for next pass", "wait", d)
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-p.clock.After(d):
		}
	}
}

func (p *Pipeline) unitLogger(stage string, key domain.ObservationKey) *slog.Logger {
	l := p.logger.With("stage", stage, "event", string(key.Event), "aoi", string(key.AOI))
	if !key.Date.IsZero() {
		l = l.With("date", key.Date.String())
	}
	return l
}
