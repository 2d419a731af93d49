package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrelhq/kestrel-go/internal/core"
	"github.com/kestrelhq/kestrel-go/internal/logging"
)

func definitions(keys ...string) core.DefinitionSet {
	flags := make([]core.FlagDefinition, len(keys))
	for i, key := range keys {
		flags[i] = core.FlagDefinition{Key: key, TargetingVersion: 1}
	}
	return core.NewDefinitionSet(flags)
}

func TestGetBeforeFirstFetch(t *testing.T) {
	c := New(Config{}, func(context.Context) (core.DefinitionSet, error) {
		return definitions("a"), nil
	}, nil, nil)

	if _, ok := c.Get(); ok {
		t.Error("Get before any refresh reported a snapshot")
	}
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	var current atomic.Value
	current.Store(definitions("a"))
	c := New(Config{MinRefreshInterval: 0}, func(context.Context) (core.DefinitionSet, error) {
		return current.Load().(core.DefinitionSet), nil
	}, nil, nil)

	set, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, ok := set.Flag("a"); !ok {
		t.Fatal("refreshed snapshot missing flag a")
	}

	current.Store(definitions("a", "b"))
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}

	set, ok := c.Get()
	if !ok {
		t.Fatal("Get after refresh reported no snapshot")
	}
	if set.Len() != 2 {
		t.Errorf("snapshot has %d flags, want 2", set.Len())
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(Config{MinRefreshInterval: 0}, func(context.Context) (core.DefinitionSet, error) {
		calls.Add(1)
		<-release
		return definitions("a"), nil
	}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Refresh(context.Background()); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}

	// Let all three goroutines reach the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (single-flight)", got)
	}
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	var fail atomic.Bool
	c := New(Config{MinRefreshInterval: 0}, func(context.Context) (core.DefinitionSet, error) {
		if fail.Load() {
			return core.DefinitionSet{}, errors.New("definitions source down")
		}
		return definitions("a"), nil
	}, nil, nil)

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	fail.Store(true)
	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh against failing source: err = nil, want error")
	}

	set, ok := c.Get()
	if !ok {
		t.Fatal("previous snapshot lost after failed refresh")
	}
	if _, ok := set.Flag("a"); !ok {
		t.Error("previous snapshot content lost after failed refresh")
	}
}

func TestStaleWarningLoggedOncePerCycle(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("warn", &buf)

	c := New(Config{StaleWarnAge: time.Minute, MinRefreshInterval: 0},
		func(context.Context) (core.DefinitionSet, error) {
			return definitions("a"), nil
		}, logger, nil)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	current = current.Add(2 * time.Minute)
	for i := 0; i < 5; i++ {
		if _, ok := c.Get(); !ok {
			t.Fatal("stale snapshot not returned")
		}
	}
	if got := strings.Count(buf.String(), "definitions are stale"); got != 1 {
		t.Errorf("stale warnings logged = %d, want 1", got)
	}

	// A successful refresh resets the warning latch.
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	current = current.Add(2 * time.Minute)
	c.Get()
	if got := strings.Count(buf.String(), "definitions are stale"); got != 2 {
		t.Errorf("stale warnings logged = %d, want 2 after new cycle", got)
	}
}

func TestRefreshThrottle(t *testing.T) {
	var calls atomic.Int32
	c := New(Config{MinRefreshInterval: time.Hour}, func(context.Context) (core.DefinitionSet, error) {
		calls.Add(1)
		return definitions("a"), nil
	}, nil, nil)

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	for i := 0; i < 10; i++ {
		set, err := c.Refresh(context.Background())
		if err != nil {
			t.Fatalf("throttled Refresh: %v", err)
		}
		if _, ok := set.Flag("a"); !ok {
			t.Fatal("throttled Refresh did not serve the cached snapshot")
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (throttled)", got)
	}
}

func TestBackgroundRefreshLoop(t *testing.T) {
	var calls atomic.Int32
	c := New(Config{RefreshInterval: 20 * time.Millisecond, MinRefreshInterval: 0},
		func(context.Context) (core.DefinitionSet, error) {
			calls.Add(1)
			return definitions("a"), nil
		}, nil, nil)

	c.Start(context.Background())
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatal("background loop did not refresh")
	}

	c.Stop()
	after := calls.Load()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != after {
		t.Error("refresh loop kept running after Stop")
	}
}
