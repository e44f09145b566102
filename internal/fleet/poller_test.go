package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"drone-fleet/internal/common"
	"drone-fleet/internal/logging"
)

func newTestPoller(h *harness) *Poller {
	return NewPoller(h.store, h.registry, h.dispatched, time.Hour, 0, logging.Discard())
}

// runSession starts s and stops it at test end.
func runSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// Scenario A: one due mission, one idle drone, two poll cycles.
func TestPoller_DispatchesOncePerMission(t *testing.T) {
	h := newHarness(t)
	h.store.putMission(testMission("M1", time.Now().Add(-time.Second), common.NewLocation(51.6, -0.12), "D1"))
	s, conn := h.register(t, testDrone("D1", 51.5, -0.12))
	runSession(t, s)
	p := newTestPoller(h)

	sent, err := p.Poll(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("first poll: sent=%d err=%v", sent, err)
	}
	sent, err = p.Poll(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("second poll: sent=%d err=%v", sent, err)
	}

	waitFor(t, "depart command", func() bool { return len(conn.sentOfType(TypeDepart)) == 1 })
	waitFor(t, "drone on mission", func() bool { return h.store.drone("D1").IsOnMission })

	// Once the drone is on its mission the store no longer reports it idle.
	sent, _ = p.Poll(ctx)
	if sent != 0 {
		t.Fatalf("third poll sent %d", sent)
	}
	if n := len(conn.sentOfType(TypeDepart)); n != 1 {
		t.Fatalf("expected exactly one depart, got %d", n)
	}
}

func TestPoller_ConcurrentCyclesDispatchOnce(t *testing.T) {
	h := newHarness(t)
	h.store.putMission(testMission("M1", time.Now().Add(-time.Second), common.NewLocation(51.6, -0.12), "D1"))
	s, conn := h.register(t, testDrone("D1", 51.5, -0.12))
	runSession(t, s)
	p := newTestPoller(h)

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _ := p.Poll(ctx)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 1 {
		t.Fatalf("expected one dispatch across concurrent cycles, got %d", total)
	}
	waitFor(t, "depart command", func() bool { return len(conn.sentOfType(TypeDepart)) == 1 })
}

func TestPoller_FirstDueMissionWins(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	h.store.putMission(testMission("M2", now.Add(-time.Second), common.NewLocation(51.6, -0.12), "D1"))
	h.store.putMission(testMission("M1", now.Add(-time.Minute), common.NewLocation(51.7, -0.12), "D1"))
	s, _ := h.register(t, testDrone("D1", 51.5, -0.12))
	p := newTestPoller(h)

	if sent, err := p.Poll(ctx); err != nil || sent != 1 {
		t.Fatalf("poll: sent=%d err=%v", sent, err)
	}
	item := <-s.inbox
	dep, ok := item.ev.(DepartEvent)
	if !ok {
		t.Fatalf("expected DepartEvent, got %+v", item)
	}
	if dep.Mission.ID != "M1" {
		t.Fatalf("expected earliest mission M1, got %s", dep.Mission.ID)
	}
}

func TestPoller_SkipsFutureAndBusyDrones(t *testing.T) {
	h := newHarness(t)
	h.store.putMission(testMission("M1", time.Now().Add(time.Hour), common.NewLocation(51.6, -0.12), "D1"))
	busy := testDrone("D2", 51.5, -0.12)
	busy.IsOnMission = true
	h.store.putMission(testMission("M2", time.Now().Add(-time.Minute), common.NewLocation(51.6, -0.12), "D2"))
	h.register(t, testDrone("D1", 51.5, -0.12))
	h.register(t, busy)

	if sent, err := newTestPoller(h).Poll(ctx); err != nil || sent != 0 {
		t.Fatalf("expected nothing dispatched, sent=%d err=%v", sent, err)
	}
	if h.dispatched.Len() != 0 {
		t.Fatal("nothing should be marked dispatched")
	}
}

func TestPoller_DroneWithoutSessionIsReleased(t *testing.T) {
	h := newHarness(t)
	h.store.putMission(testMission("M1", time.Now().Add(-time.Second), common.NewLocation(51.6, -0.12), "D1"))
	h.store.putDrone(testDrone("D1", 51.5, -0.12))
	p := newTestPoller(h)

	if sent, err := p.Poll(ctx); err != nil || sent != 0 {
		t.Fatalf("poll: sent=%d err=%v", sent, err)
	}
	if h.dispatched.Contains("D1") {
		t.Fatal("undelivered dispatch must not stay marked")
	}

	// Connects later: the next cycle reaches it.
	h.register(t, testDrone("D1", 51.5, -0.12))
	if sent, _ := p.Poll(ctx); sent != 1 {
		t.Fatalf("expected dispatch after connect, got %d", sent)
	}
}

func TestPoller_StoreFailureAbortsCycle(t *testing.T) {
	h := newHarness(t)
	h.store.dueErr = errors.New("timeout")

	if _, err := newTestPoller(h).Poll(ctx); err == nil {
		t.Fatal("expected error")
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	p := NewPoller(h.store, h.registry, h.dispatched, 10*time.Millisecond, 0, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
