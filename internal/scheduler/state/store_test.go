package state

import (
	"sync"
	"testing"
	"time"
)

func TestStoreSwapAndLoad(t *testing.T) {
	s := NewStore()
	if s.Load() != nil {
		t.Fatal("new store should be empty")
	}

	first := &Snapshot{GeneratedAt: time.Unix(100, 0)}
	if prev := s.Swap(first); prev != nil {
		t.Fatalf("prev = %+v", prev)
	}
	second := &Snapshot{GeneratedAt: time.Unix(200, 0)}
	if prev := s.Swap(second); prev != first {
		t.Fatal("Swap did not return the replaced snapshot")
	}
	if s.Load() != second {
		t.Fatal("Load did not return the latest snapshot")
	}
}

func TestStoreInstallIfNewer(t *testing.T) {
	s := NewStore()
	base := time.Unix(1000, 0)

	if !s.InstallIfNewer(&Snapshot{GeneratedAt: base}) {
		t.Fatal("first install rejected")
	}
	if s.InstallIfNewer(&Snapshot{GeneratedAt: base}) {
		t.Fatal("equal timestamp installed")
	}
	if s.InstallIfNewer(&Snapshot{GeneratedAt: base.Add(-time.Second)}) {
		t.Fatal("older snapshot installed")
	}

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.InstallIfNewer(&Snapshot{GeneratedAt: base.Add(time.Duration(i) * time.Second)})
		}(i)
	}
	wg.Wait()

	if got := s.Load().GeneratedAt; !got.Equal(base.Add(50 * time.Second)) {
		t.Fatalf("latest = %v", got)
	}
}

func TestSnapshotGetOnNil(t *testing.T) {
	var snap *Snapshot
	if _, ok := snap.Get("a"); ok {
		t.Fatal("nil snapshot returned a channel")
	}
}
