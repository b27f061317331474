package limiter

import (
	"slices"
	"sync"
	"testing"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

// recordingHandler collects the items it runs, in order.
type recordingHandler struct {
	mu    sync.Mutex
	items []string
	busy  bool
}

func (h *recordingHandler) Run(item string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, item)
}

func (h *recordingHandler) Busy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.busy
}

func (h *recordingHandler) SetBusy(busy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.busy = busy
}

func (h *recordingHandler) Items() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.items)
}

func TestLeakyBucket_RejectsWhenFull(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	lb := NewLeakyBucket[string](2, 0.001, vc)

	if !lb.Add("a") || !lb.Add("b") {
		t.Fatal("queue has room, should admit")
	}
	if lb.Add("c") {
		t.Error("queue full, should reject")
	}
	if got := lb.Pending(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Pending = %v, want [a b]", got)
	}
}

func TestLeakyBucket_FIFOOrder(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	// 1 item per 100ms.
	lb := NewLeakyBucket[string](10, 0.01, vc)
	h := &recordingHandler{}
	lb.Subscribe(h)

	for _, k := range []string{"a", "b", "c", "d"} {
		lb.Add(k)
	}

	// One handler takes one item per drain pass.
	for i := 0; i < 4; i++ {
		vc.AdvanceMillis(100)
		if n := lb.Drain(); n != 1 {
			t.Fatalf("drain %d dispatched %d, want 1", i+1, n)
		}
	}

	if got := h.Items(); !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("items = %v, want [a b c d]", got)
	}
	if lb.QueueLen() != 0 {
		t.Errorf("QueueLen = %d, want 0", lb.QueueLen())
	}
}

func TestLeakyBucket_DispatchBoundedByTokensAndIdleHandlers(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  int64
		handlers int
		busy     int
		queued   int
		want     int
	}{
		{"tokens bound", 200, 5, 0, 5, 2},
		{"handlers bound", 1000, 3, 0, 5, 3},
		{"busy handlers excluded", 1000, 4, 2, 5, 2},
		{"queue bound", 1000, 5, 0, 1, 1},
		{"capacity caps tokens", 1_000_000, 10, 0, 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vc := clock.NewVirtualClockAt(epochMillis)
			lb := NewLeakyBucket[string](5, 0.01, vc)

			hs := make([]*recordingHandler, tt.handlers)
			for i := range hs {
				hs[i] = &recordingHandler{busy: i < tt.busy}
				lb.Subscribe(hs[i])
			}
			for i := 0; i < tt.queued; i++ {
				lb.Add(string(rune('a' + i)))
			}

			vc.AdvanceMillis(tt.elapsed)
			if got := lb.Drain(); got != tt.want {
				t.Errorf("Drain = %d, want %d", got, tt.want)
			}
			for i := 0; i < tt.busy; i++ {
				if len(hs[i].Items()) != 0 {
					t.Errorf("busy handler %d received work", i)
				}
			}
			if lb.QueueLen() != tt.queued-tt.want {
				t.Errorf("QueueLen = %d, want %d", lb.QueueLen(), tt.queued-tt.want)
			}
		})
	}
}

func TestLeakyBucket_OneItemPerHandlerPerPass(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	lb := NewLeakyBucket[string](10, 1, vc)
	h1, h2 := &recordingHandler{}, &recordingHandler{}
	lb.Subscribe(h1)
	lb.Subscribe(h2)

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		lb.Add(k)
	}
	vc.AdvanceMillis(100)
	lb.Drain()

	// Subscription order: h1 gets the head, h2 the next.
	if got := h1.Items(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("h1 items = %v, want [a]", got)
	}
	if got := h2.Items(); !slices.Equal(got, []string{"b"}) {
		t.Errorf("h2 items = %v, want [b]", got)
	}
	if h1.Busy() || h2.Busy() {
		t.Error("inline dispatch should leave handlers idle after Run")
	}
}

func TestLeakyBucket_FractionalTokensAccumulate(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	// 1 item per second.
	lb := NewLeakyBucket[string](5, 0.001, vc)
	h := &recordingHandler{}
	lb.Subscribe(h)
	lb.Add("a")

	for i := 0; i < 9; i++ {
		vc.AdvanceMillis(100)
		if n := lb.Drain(); n != 0 {
			t.Fatalf("drain at +%dms dispatched %d, want 0", (i+1)*100, n)
		}
	}

	vc.AdvanceMillis(100)
	if n := lb.Drain(); n != 1 {
		t.Errorf("drain at +1000ms dispatched %d, want 1", n)
	}
}

func TestLeakyBucket_NoHandlersLosesTokens(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	lb := NewLeakyBucket[string](5, 0.01, vc)
	lb.Add("a")

	vc.AdvanceMillis(500)
	if n := lb.Drain(); n != 0 {
		t.Fatalf("no handlers, Drain = %d, want 0", n)
	}

	// The drain timestamp moved, so subscribing now gives no backlog of tokens.
	h := &recordingHandler{}
	lb.Subscribe(h)
	if n := lb.Drain(); n != 0 {
		t.Errorf("Drain = %d, want 0", n)
	}
	if lb.QueueLen() != 1 {
		t.Errorf("QueueLen = %d, want 1", lb.QueueLen())
	}
}

func TestLeakyBucket_AddDrainsFirst(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	lb := NewLeakyBucket[string](1, 0.01, vc)
	h := &recordingHandler{}
	lb.Subscribe(h)

	if !lb.Add("a") {
		t.Fatal("first add should be admitted")
	}
	if lb.Add("b") {
		t.Fatal("queue full, should reject")
	}

	vc.AdvanceMillis(100)
	if !lb.Add("c") {
		t.Error("drain should have freed a slot before the capacity check")
	}
	if got := h.Items(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("items = %v, want [a]", got)
	}
}

func TestLeakyBucket_ZeroCapacity(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	lb := NewLeakyBucket[string](0, 1, vc)
	if lb.Add("a") {
		t.Error("capacity 0 should always reject")
	}
}

func TestLeakyBucket_ZeroRateNeverDrains(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	lb := NewLeakyBucket[string](1, 0, vc)
	lb.Subscribe(&recordingHandler{})
	lb.Add("a")

	vc.AdvanceMillis(1_000_000)
	if lb.Add("b") {
		t.Error("zero drain rate should never free a slot")
	}
}

func TestLeakyBucket_Unsubscribe(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	lb := NewLeakyBucket[string](5, 1, vc)
	h1, h2 := &recordingHandler{}, &recordingHandler{}
	lb.Subscribe(h1)
	lb.Subscribe(h2)
	lb.Unsubscribe(h1)

	if lb.Handlers() != 1 {
		t.Fatalf("Handlers = %d, want 1", lb.Handlers())
	}

	lb.Add("a")
	vc.AdvanceMillis(10)
	lb.Drain()

	if len(h1.Items()) != 0 {
		t.Error("unsubscribed handler received work")
	}
	if got := h2.Items(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("h2 items = %v, want [a]", got)
	}
}

func TestLeakyBucket_UnsubscribeUnknownIsNoop(t *testing.T) {
	lb := NewLeakyBucket[string](1, 1, clock.NewVirtualClockAt(0))
	lb.Subscribe(&recordingHandler{})
	lb.Unsubscribe(&recordingHandler{})
	if lb.Handlers() != 1 {
		t.Errorf("Handlers = %d, want 1", lb.Handlers())
	}
}

func TestLeakyBucket_PoolDispatch(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	pool := NewPool()
	lb := NewLeakyBucket[string](10, 1, vc, WithDispatcher(pool))

	release := make(chan struct{})
	var mu sync.Mutex
	var got []string
	h := NewFuncHandler(func(item string) {
		<-release
		mu.Lock()
		got = append(got, item)
		mu.Unlock()
	})
	lb.Subscribe(h)

	lb.Add("a")
	lb.Add("b")
	vc.AdvanceMillis(10)
	if n := lb.Drain(); n != 1 {
		t.Fatalf("Drain = %d, want 1", n)
	}
	if !h.Busy() {
		t.Fatal("handler should be busy while its task is running")
	}

	// Busy handler is skipped; tokens are spent but nothing is dispatched.
	vc.AdvanceMillis(10)
	if n := lb.Drain(); n != 0 {
		t.Errorf("Drain with busy handler = %d, want 0", n)
	}

	close(release)
	pool.Wait()

	if h.Busy() {
		t.Error("handler should be idle after its task returns")
	}
	if pool.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", pool.InFlight())
	}

	vc.AdvanceMillis(10)
	lb.Drain()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("items = %v, want [a b]", got)
	}
}

func TestLeakyBucket_LoggingHandler(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	lb := NewLeakyBucket[string](1, 1, vc)
	lb.Subscribe(NewLoggingHandler[string]())

	lb.Add("a")
	vc.AdvanceMillis(1)
	if n := lb.Drain(); n != 1 {
		t.Errorf("Drain = %d, want 1", n)
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := NewPool()
	pool.Dispatch(func() { panic("boom") })
	pool.Wait()
	if pool.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", pool.InFlight())
	}
}
