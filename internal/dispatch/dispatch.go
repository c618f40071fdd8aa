// Package dispatch runs the handler table over a document: every matching
// node becomes a job for a bounded pool of workers, and the patches the
// workers produce are applied one by one on the calling goroutine.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webinliner/internal/handler"
	"webinliner/internal/html"
	"webinliner/internal/logging"
)

// DefaultThreads is the worker count used when none is configured.
const DefaultThreads = 40

// Stats summarises one run.
type Stats struct {
	Matched  int           // nodes matched by any handler
	Applied  int           // patches applied to the document
	Duration time.Duration // wall time of the run
}

// Dispatcher owns the worker pool settings. It holds no per-run state and may
// be reused.
type Dispatcher struct {
	threads int
	log     *zap.Logger
}

// New creates a Dispatcher running at most threads transforms at once.
func New(threads int, log *zap.Logger) *Dispatcher {
	if threads < 1 {
		threads = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{threads: threads, log: log}
}

type job struct {
	handler handler.Handler
	node    html.Node
}

type patch struct {
	apply handler.Patch
	log   *zap.Logger
}

// Run matches every handler against doc and applies the resulting patches.
// Node handles for all handlers are collected before any transform runs. The
// first transform or patch error cancels the remaining work and is returned.
func (d *Dispatcher) Run(ctx context.Context, doc html.Document, env *handler.Env, handlers []handler.Handler) (Stats, error) {
	start := time.Now()

	var jobs []job
	for _, h := range handlers {
		nodes := doc.Select(h.Matcher)
		d.log.Debug("selector matched",
			zap.String("handler", h.Name),
			zap.String("selector", h.Selector),
			zap.Int("nodes", len(nodes)),
		)
		for _, n := range nodes {
			jobs = append(jobs, job{handler: h, node: n})
		}
	}
	stats := Stats{Matched: len(jobs)}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan job)
	patches := make(chan patch)

	g.Go(func() error {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := min(d.threads, len(jobs))
	for id := 0; id < workers; id++ {
		id := id
		g.Go(func() error {
			return d.work(gctx, id, env, queue, patches)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(patches)
	}()

	var applyErr error
	for p := range patches {
		// Keep draining so workers blocked on send can exit.
		if applyErr != nil {
			continue
		}
		if err := p.apply(logging.Into(ctx, p.log)); err != nil {
			applyErr = fmt.Errorf("apply patch: %w", err)
			cancel()
			continue
		}
		stats.Applied++
	}
	workErr := <-done

	stats.Duration = time.Since(start)

	if applyErr != nil {
		return stats, applyErr
	}
	if workErr != nil {
		return stats, workErr
	}

	d.log.Info("document processed",
		zap.Int("matched", stats.Matched),
		zap.Int("applied", stats.Applied),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// work pulls jobs until the queue closes. Each job gets a logger tagged with
// the worker id and the worker's job counter.
func (d *Dispatcher) work(ctx context.Context, id int, env *handler.Env, queue <-chan job, out chan<- patch) error {
	count := 0
	for j := range queue {
		count++
		log := d.log.With(logging.Job(id, count)...)
		jctx := logging.Into(ctx, log)

		logging.Trace(log, "processing",
			zap.String("handler", j.handler.Name),
			zap.Stringer("node", j.node),
		)

		fn, err := j.handler.Transform(jctx, env, j.node)
		if err != nil {
			return fmt.Errorf("%s handler on %s: %w", j.handler.Name, j.node, err)
		}
		if fn == nil {
			continue
		}

		select {
		case out <- patch{apply: fn, log: log}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
