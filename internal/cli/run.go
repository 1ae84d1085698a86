package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/blobrelay/internal/runtime"
	"github.com/aretw0/blobrelay/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// RunOptions configures a batch of transfers started from the command line.
type RunOptions struct {
	ObjectIDs   []string
	Concurrency int
	Logger      *slog.Logger
}

// RunTransfers drives one transfer per object id and returns the final instances
// in input order. Failed transfers are reported through the instance, not the error.
func RunTransfers(ctx context.Context, engine *runtime.Engine, opts RunOptions) ([]*domain.Instance, error) {
	if len(opts.ObjectIDs) == 0 {
		return nil, errors.New("at least one object id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}

	results := make([]*domain.Instance, len(opts.ObjectIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, objectID := range opts.ObjectIDs {
		i, objectID := i, objectID
		g.Go(func() error {
			inst, err := engine.Execute(gctx, objectID)
			if err != nil {
				return fmt.Errorf("transfer %s: %w", objectID, err)
			}
			logger.Info("Transfer finished", "instance_id", inst.ID, "object_id", objectID, "phase", inst.Phase)
			results[i] = inst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// AllSucceeded reports whether every instance reached Succeeded.
func AllSucceeded(instances []*domain.Instance) bool {
	for _, inst := range instances {
		if inst == nil || inst.Phase != domain.PhaseSucceeded {
			return false
		}
	}
	return true
}
