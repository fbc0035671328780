package transport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultLivenessInterval is how often a supervisor checks its channel.
const DefaultLivenessInterval = 30 * time.Second

// Supervisor keeps exactly one channel alive for its owner. It reconnects on
// Foreground, Refresh and on liveness ticks that find the channel down. There
// is no backoff.
type Supervisor struct {
	ch       *Channel
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	paused  bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor wraps ch. interval <= 0 uses DefaultLivenessInterval.
func NewSupervisor(ch *Channel, interval time.Duration, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultLivenessInterval
	}
	return &Supervisor{
		ch:       ch,
		interval: interval,
		logger:   logger.With(zap.String("purpose", string(ch.Purpose()))),
	}
}

// Channel returns the supervised channel.
func (s *Supervisor) Channel() *Channel { return s.ch }

// Start launches the liveness ticker.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			paused := s.paused
			s.mu.Unlock()
			if paused || !s.ch.state.Down() {
				continue
			}
			if err := s.Ensure(ctx, false); err != nil {
				s.logger.Debug("liveness reconnect failed", zap.Error(err))
			}
		}
	}
}

// Ensure opens the channel unless it is already OPEN. force closes an open
// channel first.
func (s *Supervisor) Ensure(ctx context.Context, force bool) error {
	if force {
		s.ch.Close()
	} else if s.ch.state.Live() {
		return nil
	}
	return s.ch.Open(ctx)
}

// Foreground resumes liveness checks and reconnects if needed.
func (s *Supervisor) Foreground(ctx context.Context) error {
	s.setPaused(false)
	return s.Ensure(ctx, false)
}

// Background closes the channel and pauses liveness checks until the next
// Foreground or Refresh.
func (s *Supervisor) Background() {
	s.setPaused(true)
	s.ch.Close()
}

// Refresh forces a fresh connection.
func (s *Supervisor) Refresh(ctx context.Context) error {
	s.setPaused(false)
	return s.Ensure(ctx, true)
}

// Close stops the ticker and closes the channel.
func (s *Supervisor) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.paused = true
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	s.ch.Close()
}

func (s *Supervisor) setPaused(p bool) {
	s.mu.Lock()
	s.paused = p
	s.mu.Unlock()
}
