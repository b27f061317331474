package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
	"github.com/SmitUplenchwar2687/admit/internal/events"
)

func TestHub_PublishDropsFullClientWithoutBlocking(t *testing.T) {
	h := NewHub()
	slow := &client{send: make(chan []byte, 1)}
	h.clients[slow] = struct{}{}

	e := events.NewEvent("user1", "token_bucket", true, epoch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			if err := h.Publish(context.Background(), e); err != nil {
				t.Errorf("Publish() error = %v", err)
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a client that is not reading")
	}

	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d, want the slow client dropped", n)
	}
	// The queued event is still there and the channel is closed.
	if _, ok := <-slow.send; !ok {
		t.Error("expected the first event to stay queued")
	}
	if _, ok := <-slow.send; ok {
		t.Error("expected send channel to be closed")
	}
}

func TestHub_RemoveTwice(t *testing.T) {
	h := NewHub()
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	h.remove(c)
	h.remove(c)

	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d, want 0", n)
	}
}

func TestHub_CloseSendsCloseFrame(t *testing.T) {
	vc := clock.NewVirtualClock(epoch)
	srv, baseURL := startTestServer(t, tokenBucket(5), vc, Options{})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.Hub().Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("ReadMessage() error = %v, want going-away close", err)
	}
}
