// internal/bot/worker.go
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// fetchSnapshots loads a snapshot for every position on a pool of at most
// FetchWorkers goroutines. The result is keyed by the position's index; failed
// fetches are logged and left out so one bad token never stalls the cycle.
func (r *Runner) fetchSnapshots(ctx context.Context, positions []domain.Position) map[int]domain.MarketSnapshot {
	var (
		mu  sync.Mutex
		out = make(map[int]domain.MarketSnapshot, len(positions))
	)

	var g errgroup.Group
	g.SetLimit(r.cfg.FetchWorkers)

	for i, p := range positions {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			snap, err := r.market.GetSnapshot(ctx, p.TokenID)
			if r.metrics != nil {
				r.metrics.ObserveSnapshotFetch(time.Since(start), err)
			}
			if err != nil {
				level := r.logger.Warn
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled) {
					level = r.logger.Debug
				}
				level("Snapshot fetch failed", zap.String("token", p.TokenID), zap.Error(err))
				return nil
			}
			snap.TokenID = p.TokenID

			mu.Lock()
			out[i] = snap
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
