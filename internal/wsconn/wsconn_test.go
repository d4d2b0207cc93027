package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// echoServer accepts one connection and echoes every message back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestConnectAndEcho(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	cfg := DefaultConfig(wsURL(srv), "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	client.OnMessage(func(_ context.Context, msg []byte) {
		received <- msg
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !client.IsConnected() {
		t.Fatalf("expected connected state, got %s", client.State())
	}

	if err := client.Send(ctx, []byte("ticker.sub BTC-USD")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != "ticker.sub BTC-USD" {
			t.Errorf("echo mismatch: %q", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestSendJSON(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	cfg := DefaultConfig(wsURL(srv), "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	client.OnMessage(func(_ context.Context, msg []byte) {
		received <- msg
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	payload := map[string]any{"op": "subscribe", "channel": "ticker"}
	if err := client.SendJSON(ctx, payload); err != nil {
		t.Fatalf("SendJSON: %v", err)
	}

	select {
	case msg := <-received:
		if !strings.Contains(string(msg), `"op":"subscribe"`) {
			t.Errorf("unexpected payload: %s", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestSendWithoutConnect(t *testing.T) {
	client, err := New(DefaultConfig("ws://127.0.0.1:1/ws", "test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Send(context.Background(), []byte("noop")); err == nil {
		t.Error("expected error sending before Connect")
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{Name: "test"}); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	var mu sync.Mutex
	accepts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		accepts++
		n := accepts
		mu.Unlock()
		if n == 1 {
			// Drop the first connection to force a reconnect.
			conn.CloseNow()
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := DefaultConfig(wsURL(srv), "test")
	cfg.PingInterval = 0
	cfg.InitialBackoff = 50 * time.Millisecond

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	var states []State
	var stateMu sync.Mutex
	client.OnStateChange(func(s State, _ error) {
		stateMu.Lock()
		states = append(states, s)
		stateMu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		stateMu.Lock()
		sawReconnecting := false
		for _, s := range states {
			if s == StateReconnecting {
				sawReconnecting = true
			}
		}
		stateMu.Unlock()
		if sawReconnecting && client.IsConnected() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("never recovered; states=%v current=%s", states, client.State())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	cfg := DefaultConfig(wsURL(srv), "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if client.State() != StateClosed {
		t.Errorf("expected %s, got %s", StateClosed, client.State())
	}
}
