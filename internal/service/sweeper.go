package service

import (
	"context"
	"time"

	"github.com/retroden/netplay-service/pkg/log"
)

// Sweeper periodically cancels sessions that outlived their TTL. It is the
// only background writer; everything it does goes through the same
// conditional transitions as the request path, so a sweep racing a join or
// delete simply loses.
type Sweeper struct {
	svc      NetplayService
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper ticking at the given interval.
func NewSweeper(svc NetplayService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop signals the loop to exit. Wait on Done for the in-flight sweep.
func (s *Sweeper) Stop() {
	close(s.stop)
}

// Done is closed once the loop has fully exited.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	l := log.L()

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	cancelled, err := s.svc.ExpireSessions(ctx)
	if err != nil {
		l.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if cancelled > 0 {
		l.Info().Int("cancelled", cancelled).Msg("expiry sweep cancelled sessions")
	}
}
