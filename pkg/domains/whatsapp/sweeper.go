package whatsapp

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/wacrm/pkg/entities"
	"go.uber.org/zap"
)

// DefaultSweepGrace is how long an active record may go without a live handle before it is swept.
const DefaultSweepGrace = 2 * time.Minute

// Sweeper marks records that claim to be active but have no live handle as disconnected.
type Sweeper struct {
	repo     Repository
	registry *Registry
	grace    time.Duration
	cron     *cron.Cron
	log      *zap.Logger
}

func NewSweeper(spec string, grace time.Duration, repo Repository, registry *Registry, log *zap.Logger) (*Sweeper, error) {
	s := &Sweeper{
		repo:     repo,
		registry: registry,
		grace:    grace,
		cron:     cron.New(),
		log:      log,
	}
	if _, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("sweep panicked", zap.Any("error", err))
			}
		}()
		if _, err := s.Sweep(context.Background()); err != nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, errors.Wrapf(err, "invalid sweep spec %q", spec)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one pass and returns the number of records it reset.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	sessions, err := s.repo.ListSessionsByStatus(ctx, entities.SessionStatusConnecting, entities.SessionStatusConnected)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.grace)
	swept := 0
	for _, session := range sessions {
		if _, live := s.registry.Get(session.SessionID); live {
			continue
		}
		if session.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.repo.UpdateSession(ctx, session.SessionID, map[string]interface{}{
			"status":  entities.SessionStatusDisconnected,
			"qr_code": "",
		}); err != nil {
			s.log.Warn("failed to sweep session", zap.String("session_id", session.SessionID), zap.Error(err))
			continue
		}
		swept++
		s.log.Info("stale session swept", zap.String("session_id", session.SessionID), zap.String("was", session.Status))
	}
	return swept, nil
}
