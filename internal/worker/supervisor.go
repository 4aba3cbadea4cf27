package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs several pollers side by side in one process.
type Supervisor struct {
	pollers []*Poller
	logger  *zap.Logger
}

// NewSupervisor creates a supervisor for pollers.
func NewSupervisor(logger *zap.Logger, pollers ...*Poller) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{pollers: pollers, logger: logger.Named("supervisor")}
}

// Pollers returns the supervised pollers.
func (s *Supervisor) Pollers() []*Poller { return s.pollers }

// Run registers each poller and then runs it until ctx is cancelled. A failed
// registration is logged and the poller polls anyway; only ctx ends the group.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.pollers) == 0 {
		return fmt.Errorf("no workers to run")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.pollers {
		g.Go(func() error {
			if err := p.Register(gctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn("registration failed, polling anyway",
					zap.String("worker_id", p.WorkerID()), zap.Error(err))
			}
			return p.Run(gctx)
		})
	}
	s.logger.Info("workers running", zap.Int("count", len(s.pollers)))
	return g.Wait()
}
