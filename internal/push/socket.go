// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package push implements the long-lived duplex channel to the backend.
//
// The backend exposes one websocket per client instance at
// /ws/chat/{client_id}. Requests are tagged with a freshly generated
// message identifier; responses are matched back to their caller through
// the pending-exchange map. Because the backend is not guaranteed to echo
// the identifier, the socket keeps at most one uncorrelated request
// outstanding, queuing further sends, until the server proves it echoes
// correlation identifiers. A response is therefore never delivered to the
// wrong caller.
package push

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jeranaias/lexos-tui/internal/api"
)

// Reconnection policy for unexpected disconnects.
const (
	// DefaultMaxReconnects is how many automatic reconnection attempts are
	// made before giving up and requiring a manual Connect.
	DefaultMaxReconnects = 5

	// DefaultReconnectDelay is the fixed delay between attempts.
	DefaultReconnectDelay = 1 * time.Second
)

// Error variables for socket operations.
var (
	// ErrNotConnected indicates Send was called without an open channel.
	ErrNotConnected = errors.New("push channel not connected")

	// ErrDisconnected indicates the channel dropped while an exchange was
	// pending.
	ErrDisconnected = errors.New("push channel disconnected")
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Request is the client-to-server event: the chat request fields plus the
// correlation identifier.
type Request struct {
	api.ChatRequest
	MessageID string `json:"message_id"`
}

// Result is the server-to-client event. MessageID is echoed when the
// backend supports correlation; Error is set when the backend failed to
// process the request.
type Result struct {
	api.ChatResponse
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ResultHandler receives the outcome of one Send.
type ResultHandler func(res *Result, err error)

// pendingExchange correlates an outbound request to its continuation.
type pendingExchange struct {
	id      string
	handler ResultHandler
}

// outbound is a queued request waiting for the single-outstanding slot.
type outbound struct {
	req     Request
	handler ResultHandler
}

// =============================================================================
// SOCKET
// =============================================================================

// Socket owns the push-channel connection lifecycle. It is constructed
// explicitly and injected into consumers; there is no package-level
// instance.
type Socket struct {
	mu sync.Mutex

	url      string
	clientID string
	dialer   *websocket.Dialer

	conn         *websocket.Conn
	connected    bool
	connecting   bool
	reconnecting bool
	manualClose  bool

	// Pending exchanges in send order. The order matters: when the server
	// omits the correlation identifier, the single outstanding exchange is
	// by construction the oldest (and only) entry.
	pending []pendingExchange

	// correlated flips to true once the server has echoed a message
	// identifier, proving correlation works; concurrent sends are allowed
	// from then on.
	correlated bool

	queue []outbound

	connListeners []func(connected bool)

	maxReconnects  int
	reconnectDelay time.Duration
}

// NewSocket creates a socket for the given websocket URL (without the
// client identifier suffix) and persisted client identifier.
func NewSocket(wsURL, clientID string) *Socket {
	return &Socket{
		url:            wsURL + "/" + clientID,
		clientID:       clientID,
		dialer:         websocket.DefaultDialer,
		maxReconnects:  DefaultMaxReconnects,
		reconnectDelay: DefaultReconnectDelay,
	}
}

// WithReconnectPolicy overrides the reconnection attempt count and delay.
func (s *Socket) WithReconnectPolicy(attempts int, delay time.Duration) *Socket {
	s.maxReconnects = attempts
	s.reconnectDelay = delay
	return s
}

// ClientID returns the persisted client identifier this socket dials with.
func (s *Socket) ClientID() string {
	return s.clientID
}

// =============================================================================
// CONNECTION LIFECYCLE
// =============================================================================

// Connect establishes the duplex connection. Calling Connect on a socket
// that is already connected, or whose dial is still in flight, is a no-op:
// only one caller ever installs a connection, so a single true transition
// is notified no matter how many callers race.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected || s.connecting {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.manualClose = false
	s.mu.Unlock()

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)

	s.mu.Lock()
	s.connecting = false
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.connected || s.manualClose {
		// Disconnect raced the dial, or a reconnection beat it; the fresh
		// connection has no owner and must not displace anything.
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.connected = true
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, true)
	go s.readLoop(conn)
	return nil
}

// Disconnect tears the channel down. It is idempotent, cancels any
// automatic reconnection in progress, and fails all pending exchanges.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	s.manualClose = true
	wasConnected := s.connected
	s.connected = false
	s.reconnecting = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	failed := s.takeAllLocked()
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	failExchanges(failed)
	if wasConnected {
		notify(listeners, false)
	}
}

// Connected reports the current connection state.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnConnectionChange registers a listener invoked exactly once per
// connection-state transition.
func (s *Socket) OnConnectionChange(fn func(connected bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connListeners = append(s.connListeners, fn)
}

// =============================================================================
// SEND
// =============================================================================

// Send transmits a request tagged with a fresh message identifier and
// registers onResult against it. Until the server has echoed a correlation
// identifier at least once, at most one request is kept outstanding;
// additional sends wait in a queue.
func (s *Socket) Send(req api.ChatRequest, onResult ResultHandler) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}

	out := Request{ChatRequest: req, MessageID: uuid.NewString()}

	if !s.correlated && len(s.pending) > 0 {
		s.queue = append(s.queue, outbound{req: out, handler: onResult})
		s.mu.Unlock()
		return nil
	}

	err := s.writeLocked(out, onResult)
	s.mu.Unlock()
	return err
}

// writeLocked registers the exchange and writes the frame. Caller holds mu.
func (s *Socket) writeLocked(out Request, onResult ResultHandler) error {
	if s.conn == nil || s.reconnecting {
		s.queue = append(s.queue, outbound{req: out, handler: onResult})
		return nil
	}
	s.pending = append(s.pending, pendingExchange{id: out.MessageID, handler: onResult})
	if err := s.conn.WriteJSON(out); err != nil {
		s.removePendingLocked(out.MessageID)
		return err
	}
	return nil
}

// flushLocked drains the send queue as far as the outstanding-request
// invariant allows. Caller holds mu.
func (s *Socket) flushLocked() {
	for len(s.queue) > 0 {
		if !s.correlated && len(s.pending) > 0 {
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		if err := s.writeLocked(next.req, next.handler); err != nil {
			go next.handler(nil, err)
		}
	}
}

// =============================================================================
// RECEIVE & DISPATCH
// =============================================================================

// readLoop consumes frames until the connection drops.
func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		var res Result
		if err := conn.ReadJSON(&res); err != nil {
			s.handleReadError(conn)
			return
		}
		s.dispatch(&res)
	}
}

// dispatch routes a frame to its pending exchange. A frame that echoes a
// message identifier resolves that exchange and proves the server supports
// correlation. A frame without one resolves the oldest (and, by the
// outstanding-request invariant, only) uncorrelated exchange.
func (s *Socket) dispatch(res *Result) {
	s.mu.Lock()

	var handler ResultHandler
	if res.MessageID != "" {
		s.correlated = true
		handler = s.removePendingLocked(res.MessageID)
	} else if len(s.pending) > 0 {
		oldest := s.pending[0]
		s.pending = s.pending[1:]
		handler = oldest.handler
	}
	s.flushLocked()
	s.mu.Unlock()

	if handler == nil {
		log.Printf("push: dropping response with no matching exchange (message_id=%q)", res.MessageID)
		return
	}
	if res.Error != "" {
		handler(nil, errors.New(res.Error))
		return
	}
	handler(res, nil)
}

// removePendingLocked removes and returns the handler registered under the
// identifier, or nil. Caller holds mu.
func (s *Socket) removePendingLocked(id string) ResultHandler {
	for i, p := range s.pending {
		if p.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return p.handler
		}
	}
	return nil
}

// =============================================================================
// RECONNECTION
// =============================================================================

// handleReadError runs the automatic reconnection policy after an
// unexpected disconnect.
func (s *Socket) handleReadError(conn *websocket.Conn) {
	s.mu.Lock()
	if s.manualClose || s.conn != conn {
		// Disconnect already handled this, or a newer connection took
		// over.
		s.mu.Unlock()
		return
	}
	s.conn.Close()
	s.conn = nil
	s.reconnecting = true
	// Exchanges written to the dead connection can never resolve.
	failed := s.takePendingLocked()
	s.mu.Unlock()

	failExchanges(failed)

	for attempt := 1; attempt <= s.maxReconnects; attempt++ {
		time.Sleep(s.reconnectDelay)

		s.mu.Lock()
		if s.manualClose {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		newConn, _, err := s.dialer.Dial(s.url, nil)
		if err != nil {
			log.Printf("push: reconnect attempt %d/%d failed: %v", attempt, s.maxReconnects, err)
			continue
		}

		s.mu.Lock()
		s.conn = newConn
		s.reconnecting = false
		s.flushLocked()
		s.mu.Unlock()

		go s.readLoop(newConn)
		return
	}

	// Attempts exhausted: surface a persistent disconnected state and
	// require a manual Connect to resume.
	s.mu.Lock()
	s.connected = false
	s.reconnecting = false
	failed = s.takeAllLocked()
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	failExchanges(failed)
	notify(listeners, false)
}

// =============================================================================
// HELPERS
// =============================================================================

// takePendingLocked clears and returns the pending exchanges. Caller holds mu.
func (s *Socket) takePendingLocked() []pendingExchange {
	failed := s.pending
	s.pending = nil
	return failed
}

// takeAllLocked clears pending exchanges and the send queue. Caller holds mu.
func (s *Socket) takeAllLocked() []pendingExchange {
	failed := s.takePendingLocked()
	for _, q := range s.queue {
		failed = append(failed, pendingExchange{id: q.req.MessageID, handler: q.handler})
	}
	s.queue = nil
	return failed
}

// snapshotListeners copies the listener list. Caller holds mu.
func (s *Socket) snapshotListeners() []func(bool) {
	listeners := make([]func(bool), len(s.connListeners))
	copy(listeners, s.connListeners)
	return listeners
}

func failExchanges(exchanges []pendingExchange) {
	for _, p := range exchanges {
		p.handler(nil, ErrDisconnected)
	}
}

func notify(listeners []func(bool), connected bool) {
	for _, fn := range listeners {
		fn(connected)
	}
}
