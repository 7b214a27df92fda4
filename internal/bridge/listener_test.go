package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newFrameServer(t *testing.T, frames []Message) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for _, f := range frames {
			if err := wsjson.Write(ctx, conn, f); err != nil {
				return
			}
		}
		// Hold the connection open so the client sees a clean stream,
		// not an EOF racing the last frame.
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListenerDeliversGameMessages(t *testing.T) {
	frames := []Message{
		{PGN: ""}, // not a game message, must be skipped
		{PGN: "1. e4 e5", Orientation: "black"},
		{PGN: "1. d4 d5"},
	}
	l := NewListener(newFrameServer(t, frames), 0, 10*time.Millisecond)

	got := make(chan *Message, 4)
	l.OnMessage(func(m *Message) { got <- m })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer l.Close(context.Background())

	if st := l.State(); st != StateConnected {
		t.Fatalf("state after connect = %v", st)
	}

	var first, second *Message
	for _, dst := range []**Message{&first, &second} {
		select {
		case m := <-got:
			*dst = m
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for frame")
		}
	}
	if first.PGN != "1. e4 e5" || first.WhiteBottom() {
		t.Fatalf("first frame mismatch: %+v", first)
	}
	if second.PGN != "1. d4 d5" || !second.WhiteBottom() {
		t.Fatalf("second frame mismatch: %+v", second)
	}
}

func TestListenerCloseStopsGoroutines(t *testing.T) {
	l := NewListener(newFrameServer(t, nil), 0, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	if err := l.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestListenerCloseDuringTraffic(t *testing.T) {
	frames := make([]Message, 50)
	for i := range frames {
		frames[i] = Message{PGN: "1. e4 e5"}
	}
	l := NewListener(newFrameServer(t, frames), 0, 10*time.Millisecond)
	l.OnMessage(func(*Message) {})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Close while the read loop is still consuming frames; both sides
	// touch the connection concurrently.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			l.State()
		}
		close(done)
	}()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	if err := l.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
}

func TestListenerDialFailure(t *testing.T) {
	l := NewListener("ws://127.0.0.1:1/nope", 0, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Connect(ctx); err == nil {
		t.Fatalf("dialing a dead endpoint must fail")
	}
	if st := l.State(); st != StateFailed {
		t.Fatalf("state after failed dial = %v", st)
	}
}

func TestMessageWhiteBottom(t *testing.T) {
	for raw, want := range map[string]bool{
		"":      true,
		"white": true,
		"black": false,
		"other": true,
	} {
		m := &Message{Orientation: raw}
		if m.WhiteBottom() != want {
			t.Fatalf("orientation %q: WhiteBottom=%v want %v", raw, m.WhiteBottom(), want)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	for _, tc := range []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{6, 3200 * time.Millisecond},
		{10, 3200 * time.Millisecond}, // capped
	} {
		if got := backoffDelay(base, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: delay=%v want %v", tc.attempt, got, tc.want)
		}
	}
}
