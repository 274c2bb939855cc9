package state

import (
	"sync/atomic"
	"time"

	"github.com/friendsincode/timeline/internal/timeline"
)

// Snapshot is one published evaluation. It is never modified after Swap.
type Snapshot struct {
	GeneratedAt        time.Time                            `json:"generated_at"`
	MinIntervalMinutes int                                  `json:"min_interval_minutes"`
	SettingsFallback   bool                                 `json:"settings_fallback,omitempty"`
	Channels           map[string]timeline.ChannelStateInfo `json:"channels"`
	// Order lists channel ids in display order.
	Order []string `json:"order"`
}

// Get returns one channel's state.
func (s *Snapshot) Get(channelID string) (timeline.ChannelStateInfo, bool) {
	if s == nil {
		return timeline.ChannelStateInfo{}, false
	}
	info, ok := s.Channels[channelID]
	return info, ok
}

// Store holds the latest snapshot for lock-free readers.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{}
}

// Swap publishes next and returns the snapshot it replaced.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	return s.current.Swap(next)
}

// Load returns the latest snapshot, or nil before the first evaluation.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// InstallIfNewer publishes next unless the current snapshot is at least as
// recent. It reports whether next was installed.
func (s *Store) InstallIfNewer(next *Snapshot) bool {
	for {
		cur := s.current.Load()
		if cur != nil && !next.GeneratedAt.After(cur.GeneratedAt) {
			return false
		}
		if s.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}
