package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Elector is the part of leadership.Election the scheduler depends on.
type Elector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAwareScheduler runs the evaluation loop only while this instance is
// the leader. Every instance follows published snapshots, so followers serve
// the leader's view.
type LeaderAwareScheduler struct {
	scheduler *Service
	election  Elector
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewLeaderAware creates a leader-aware scheduler wrapper.
func NewLeaderAware(scheduler *Service, election Elector, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler: scheduler,
		election:  election,
		logger:    logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins campaigning and following.
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	las.ctx, las.cancel = context.WithCancel(ctx)

	las.logger.Info().Msg("starting leader-aware scheduler")

	if err := las.election.Start(las.ctx); err != nil {
		las.cancel()
		return err
	}

	las.wg.Add(2)
	go func() {
		defer las.wg.Done()
		if err := las.scheduler.Follow(las.ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("snapshot follower stopped")
		}
	}()
	go func() {
		defer las.wg.Done()
		las.monitorLeadership()
	}()

	return nil
}

// Stop halts the loop, waits for it and releases leadership.
func (las *LeaderAwareScheduler) Stop() error {
	las.logger.Info().Msg("stopping leader-aware scheduler")

	if las.cancel != nil {
		las.cancel()
	}
	las.wg.Wait()
	las.stopScheduler()

	return las.election.Stop()
}

func (las *LeaderAwareScheduler) monitorLeadership() {
	leaderCh := las.election.LeaderCh()

	if las.election.IsLeader() {
		las.startScheduler()
	}

	for {
		select {
		case <-las.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				las.logger.Info().Msg("became leader, starting evaluation loop")
				las.startScheduler()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping evaluation loop")
				las.stopScheduler()
			}
		}
	}
}

func (las *LeaderAwareScheduler) startScheduler() {
	las.mu.Lock()
	defer las.mu.Unlock()

	if las.loopCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	done := make(chan struct{})
	las.loopCancel = cancel
	las.loopDone = done

	go func() {
		defer close(done)
		if err := las.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("evaluation loop error")
		}
	}()
}

func (las *LeaderAwareScheduler) stopScheduler() {
	las.mu.Lock()
	cancel, done := las.loopCancel, las.loopDone
	las.loopCancel, las.loopDone = nil, nil
	las.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the evaluation loop is active on this instance.
func (las *LeaderAwareScheduler) Running() bool {
	las.mu.Lock()
	defer las.mu.Unlock()
	return las.loopCancel != nil
}

// IsLeader returns whether this instance is the leader.
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}
