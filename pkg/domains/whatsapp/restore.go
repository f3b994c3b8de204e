package whatsapp

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/wacrm/pkg/entities"
	"go.uber.org/zap"
)

// Restorer re-creates every session that was connected when the process last stopped.
type Restorer struct {
	manager *Manager
	repo    Repository
	pool    *ants.Pool
	wg      sync.WaitGroup
	log     *zap.Logger
}

func NewRestorer(manager *Manager, repo Repository, workers int, log *zap.Logger) (*Restorer, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "create restore pool")
	}
	return &Restorer{manager: manager, repo: repo, pool: pool, log: log}, nil
}

// RestoreAllSessions queues a CreateSession for each connected record and
// returns how many were queued. A failing session is logged and does not
// affect the others.
func (r *Restorer) RestoreAllSessions(ctx context.Context) (int, error) {
	sessions, err := r.repo.ListSessionsByStatus(ctx, entities.SessionStatusConnected)
	if err != nil {
		return 0, errors.Wrap(err, "list connected sessions")
	}

	queued := 0
	for _, s := range sessions {
		s := s
		r.wg.Add(1)
		err := r.pool.Submit(func() {
			defer r.wg.Done()
			if _, err := r.manager.CreateSession(context.Background(), s.SessionID, s.SessionName, s.WorkspaceID); err != nil {
				r.log.Warn("failed to restore session", zap.String("session_id", s.SessionID), zap.Error(err))
				return
			}
			r.log.Info("session restored", zap.String("session_id", s.SessionID))
		})
		if err != nil {
			r.wg.Done()
			r.log.Warn("failed to queue session restore", zap.String("session_id", s.SessionID), zap.Error(err))
			continue
		}
		queued++
	}
	return queued, nil
}

// Wait blocks until every queued restore has finished or ctx is done.
func (r *Restorer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Restorer) Release() {
	r.pool.Release()
}
