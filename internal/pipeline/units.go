package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// unit is one independently processed piece of a stage.
type unit struct {
	key    string
	logger *slog.Logger
	// run returns skipped=true when the unit's output already exists.
	run func(ctx context.Context) (skipped bool, err error)
}

// Progress is a sink for per-stage progress.
type Progress interface {
	Start(stage string, total int)
	Advance()
	Finish()
}

type noProgress struct{}

func (noProgress) Start(string, int) {}
func (noProgress) Advance()          {}
func (noProgress) Finish()           {}

// runUnits processes units with at most Workers in flight. A failing or
// panicking unit is recorded and never stops the others.
func (p *Pipeline) runUnits(ctx context.Context, stage string, units []unit, sum *Summary) error {
	p.progress.Start(stage, len(units))
	defer p.progress.Finish()

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for _, u := range units {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r := p.runUnit(ctx, stage, u)
			sum.add(r)
			p.metrics.UnitsTotal.WithLabelValues(stage, string(r.Outcome)).Inc()
			if r.Outcome != OutcomeSkipped {
				p.metrics.UnitDuration.WithLabelValues(stage).Observe(r.Duration.Seconds())
			}
			p.progress.Advance()
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (p *Pipeline) runUnit(ctx context.Context, stage string, u unit) (r Result) {
	start := p.clock.Now()
	defer func() {
		if rec := recover(); rec != nil {
			u.logger.Error("unit panicked", "panic", rec, "stack", string(debug.Stack()))
			r = failed(stage, u.key, domain.Invariant(fmt.Errorf("panic: %v", rec)))
		}
		r.Duration = p.clock.Since(start)
	}()

	skipped, err := u.run(ctx)
	switch {
	case err != nil:
		r = failed(stage, u.key, err)
		u.logger.Warn("unit failed", "kind", r.Kind, "error", err)
	case skipped:
		r = Result{Stage: stage, Key: u.key, Outcome: OutcomeSkipped}
		u.logger.Debug("output exists, skipping")
	default:
		r = Result{Stage: stage, Key: u.key, Outcome: OutcomeOK}
	}
	return r
}
