// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/lexos-tui/internal/api"
)

// newWSServer starts a websocket server whose handler runs per connection,
// returning the ws:// URL to dial.
func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

// resultOf blocks until the handler fires or the test times out.
type resultOf struct {
	res *Result
	err error
}

func collect(ch chan resultOf) ResultHandler {
	return func(res *Result, err error) {
		ch <- resultOf{res: res, err: err}
	}
}

func waitFor(t *testing.T, ch chan resultOf) resultOf {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return resultOf{}
	}
}

func TestSendCorrelatesEchoedIdentifier(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			conn.WriteJSON(Result{
				ChatResponse: api.ChatResponse{Text: "echo:" + req.Prompt},
				MessageID:    req.MessageID,
			})
		}
	})

	s := NewSocket(wsURL, "client-1")
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()

	ch := make(chan resultOf, 1)
	if err := s.Send(api.ChatRequest{Prompt: "hello"}, collect(ch)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := waitFor(t, ch)
	if got.err != nil {
		t.Fatalf("handler err = %v", got.err)
	}
	if got.res.Text != "echo:hello" {
		t.Errorf("Text = %q", got.res.Text)
	}
	if got.res.MessageID == "" {
		t.Error("MessageID should be echoed")
	}
}

func TestSingleOutstandingUntilCorrelationProven(t *testing.T) {
	frames := make(chan Request, 4)
	release := make(chan struct{})
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			frames <- req
			<-release
			conn.WriteJSON(Result{
				ChatResponse: api.ChatResponse{Text: "done:" + req.Prompt},
				MessageID:    req.MessageID,
			})
		}
	})

	s := NewSocket(wsURL, "client-1")
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()

	ch1 := make(chan resultOf, 1)
	ch2 := make(chan resultOf, 1)
	if err := s.Send(api.ChatRequest{Prompt: "first"}, collect(ch1)); err != nil {
		t.Fatalf("Send first: %v", err)
	}
	if err := s.Send(api.ChatRequest{Prompt: "second"}, collect(ch2)); err != nil {
		t.Fatalf("Send second: %v", err)
	}

	// The first frame reaches the wire; the second must not while the first
	// is outstanding and correlation is unproven.
	first := <-frames
	if first.Prompt != "first" {
		t.Fatalf("first frame Prompt = %q", first.Prompt)
	}
	select {
	case f := <-frames:
		t.Fatalf("second frame %q sent while first was outstanding", f.Prompt)
	case <-time.After(100 * time.Millisecond):
	}

	// Resolving the first (with an echoed identifier) proves correlation and
	// flushes the queue.
	release <- struct{}{}
	if got := waitFor(t, ch1); got.err != nil || got.res.Text != "done:first" {
		t.Fatalf("first result = %+v, %v", got.res, got.err)
	}

	second := <-frames
	if second.Prompt != "second" {
		t.Fatalf("second frame Prompt = %q", second.Prompt)
	}
	release <- struct{}{}
	if got := waitFor(t, ch2); got.err != nil || got.res.Text != "done:second" {
		t.Fatalf("second result = %+v, %v", got.res, got.err)
	}
}

func TestUncorrelatedResponseResolvesOldestPending(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		// Backend that never echoes message identifiers.
		conn.WriteJSON(Result{ChatResponse: api.ChatResponse{Text: "anonymous reply"}})
	})

	s := NewSocket(wsURL, "client-1")
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()

	ch := make(chan resultOf, 1)
	if err := s.Send(api.ChatRequest{Prompt: "hello"}, collect(ch)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := waitFor(t, ch)
	if got.err != nil {
		t.Fatalf("handler err = %v", got.err)
	}
	if got.res.Text != "anonymous reply" {
		t.Errorf("Text = %q", got.res.Text)
	}
}

func TestErrorFrameFailsExchange(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteJSON(Result{MessageID: req.MessageID, Error: "model overloaded"})
	})

	s := NewSocket(wsURL, "client-1")
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()

	ch := make(chan resultOf, 1)
	s.Send(api.ChatRequest{Prompt: "hello"}, collect(ch))

	got := waitFor(t, ch)
	if got.err == nil || got.err.Error() != "model overloaded" {
		t.Errorf("err = %v, want model overloaded", got.err)
	}
	if got.res != nil {
		t.Error("failed exchange should carry no result")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	s := NewSocket("ws://127.0.0.1:1", "client-1")

	err := s.Send(api.ChatRequest{Prompt: "hello"}, func(*Result, error) {})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectIsIdempotentAndFailsPending(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		// Read but never answer.
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
		}
	})

	s := NewSocket(wsURL, "client-1")
	transitions := make(chan bool, 4)
	s.OnConnectionChange(func(connected bool) { transitions <- connected })

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := <-transitions; got != true {
		t.Fatal("expected connected transition")
	}

	ch := make(chan resultOf, 1)
	s.Send(api.ChatRequest{Prompt: "never answered"}, collect(ch))

	s.Disconnect()
	s.Disconnect()

	if got := waitFor(t, ch); !errors.Is(got.err, ErrDisconnected) {
		t.Errorf("pending err = %v, want ErrDisconnected", got.err)
	}
	if got := <-transitions; got != false {
		t.Fatal("expected disconnected transition")
	}
	select {
	case extra := <-transitions:
		t.Fatalf("extra transition %v, want exactly one per state change", extra)
	case <-time.After(100 * time.Millisecond):
	}

	if err := s.Send(api.ChatRequest{Prompt: "x"}, func(*Result, error) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Disconnect = %v, want ErrNotConnected", err)
	}
}

func TestAutomaticReconnection(t *testing.T) {
	conns := make(chan struct{}, 4)
	var connCount atomic.Int32
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		n := connCount.Add(1)
		conns <- struct{}{}
		if n == 1 {
			// First connection drops immediately.
			conn.Close()
			return
		}
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			conn.WriteJSON(Result{
				ChatResponse: api.ChatResponse{Text: "recovered"},
				MessageID:    req.MessageID,
			})
		}
	})

	s := NewSocket(wsURL, "client-1").WithReconnectPolicy(5, 10*time.Millisecond)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()

	<-conns // first connection
	select {
	case <-conns: // reconnected
	case <-time.After(2 * time.Second):
		t.Fatal("socket never reconnected")
	}

	if !s.Connected() {
		t.Error("Connected() = false, reconnection should not surface a disconnect")
	}

	ch := make(chan resultOf, 1)
	if err := s.Send(api.ChatRequest{Prompt: "hello"}, collect(ch)); err != nil {
		t.Fatalf("Send after reconnect: %v", err)
	}
	if got := waitFor(t, ch); got.err != nil || got.res.Text != "recovered" {
		t.Fatalf("result = %+v, %v", got.res, got.err)
	}
}

func TestReconnectionExhaustionSurfacesDisconnect(t *testing.T) {
	server, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	s := NewSocket(wsURL, "client-1").WithReconnectPolicy(3, 5*time.Millisecond)
	transitions := make(chan bool, 8)
	s.OnConnectionChange(func(connected bool) { transitions <- connected })

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := <-transitions; got != true {
		t.Fatal("expected connected transition")
	}

	// Kill the server so every reconnection attempt fails.
	server.Close()

	select {
	case got := <-transitions:
		if got != false {
			t.Fatalf("transition = %v, want false", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("exhaustion never surfaced a disconnect")
	}
	select {
	case extra := <-transitions:
		t.Fatalf("extra transition %v after exhaustion", extra)
	case <-time.After(100 * time.Millisecond):
	}

	if s.Connected() {
		t.Error("Connected() = true after exhaustion")
	}
	if err := s.Send(api.ChatRequest{Prompt: "x"}, func(*Result, error) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after exhaustion = %v, want ErrNotConnected", err)
	}
}

func TestConcurrentConnectDialsOnce(t *testing.T) {
	var upgrades atomic.Int32
	_, wsURL := newWSServer(t, func(conn *websocket.Conn) {
		upgrades.Add(1)
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
		}
	})

	s := NewSocket(wsURL, "client-1")
	transitions := make(chan bool, 8)
	s.OnConnectionChange(func(connected bool) { transitions <- connected })

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Connect(context.Background()); err != nil {
				t.Errorf("Connect: %v", err)
			}
		}()
	}
	wg.Wait()
	defer s.Disconnect()

	if !s.Connected() {
		t.Fatal("Connected() = false after racing Connects")
	}
	if got := <-transitions; got != true {
		t.Fatal("expected connected transition")
	}
	select {
	case extra := <-transitions:
		t.Fatalf("extra transition %v, want exactly one for the race", extra)
	case <-time.After(100 * time.Millisecond):
	}
	if got := upgrades.Load(); got != 1 {
		t.Errorf("server upgrades = %d, want 1 (surplus dials must not land)", got)
	}
}

func TestLoadClientIDIsStable(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadClientID(dir)
	if err != nil {
		t.Fatalf("LoadClientID: %v", err)
	}
	if first == "" {
		t.Fatal("empty client identifier")
	}

	second, err := LoadClientID(dir)
	if err != nil {
		t.Fatalf("LoadClientID: %v", err)
	}
	if second != first {
		t.Errorf("identifier changed across loads: %s vs %s", first, second)
	}
}
