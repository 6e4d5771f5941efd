package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// errCapReached stops a worker once enough relevant records are durable.
var errCapReached = errors.New("relevant cap reached")

// hostQueue is the work of one upstream host, drained sequentially.
type hostQueue struct {
	host  string
	items []types.WorkItem
}

// partition splits items into queues. A single worker gets one queue in
// enumeration order; otherwise items are grouped by host in first-seen
// order so that each host is only ever served by one worker at a time.
func partition(items []types.WorkItem, workers int) []hostQueue {
	if workers <= 1 {
		return []hostQueue{{items: items}}
	}

	var queues []hostQueue
	pos := make(map[string]int)
	for _, item := range items {
		host := item.Host()
		i, ok := pos[host]
		if !ok {
			i = len(queues)
			pos[host] = i
			queues = append(queues, hostQueue{host: host})
		}
		queues[i].items = append(queues[i].items, item)
	}
	return queues
}

// schedule drains the host queues with at most engine.workers goroutines.
// The first fatal error cancels the remaining workers.
func (e *Engine) schedule(ctx context.Context, items []types.WorkItem) error {
	workers := min(max(e.cfg.Engine.Workers, 1), config.MaxWorkers)
	queues := partition(items, workers)
	e.logger.Info("starting worker pool", "workers", min(workers, len(queues)), "queues", len(queues))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, q := range queues {
		if gctx.Err() != nil || e.capped() {
			break
		}
		q := q
		g.Go(func() error {
			return e.drain(gctx, q)
		})
	}
	return g.Wait()
}

// drain processes one queue in order.
func (e *Engine) drain(ctx context.Context, q hostQueue) error {
	e.metrics.ActiveWorkers.Add(1)
	defer e.metrics.ActiveWorkers.Add(-1)

	for _, item := range q.items {
		err := e.process(ctx, item)
		if errors.Is(err, errCapReached) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
