// Package conn implements the per-socket Connection state machine described
// in spec.md §4.3: HANDSHAKING -> LIVE -> TIMED_OUT -> CLOSED, heartbeat
// ping/pong with timeout-driven eviction, and the inbound byte buffer that
// lets partial TCP reads accumulate into complete WebSocket frames.
package conn

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/originsim/origin-server/internal/telemetry"
	"github.com/originsim/origin-server/internal/wsproto"
)

// State is one of the Connection lifecycle states.
type State int32

const (
	StateHandshaking State = iota
	StateLive
	StateTimedOut
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "HANDSHAKING"
	case StateLive:
		return "LIVE"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const (
	heartbeatInterval  = 5 * time.Second
	pongTimeout        = 15 * time.Second
	maxMissedPongs     = 3
	heartbeatPayloadLen = 29
	closeGrace         = 1 * time.Second
)

// Handlers are the callbacks a Connection invokes. OnText runs on the
// connection's own read-loop goroutine, one frame at a time — matching
// spec.md §5's "inbound frames on a single connection are processed in
// arrival order". OnClosed runs on whichever goroutine tears the connection
// down: the read loop, a close-grace timer, or a caller of Close.
type Handlers struct {
	// OnText is invoked once per inbound Text frame with its raw payload.
	OnText func(c *Connection, payload []byte)
	// OnClosed is invoked exactly once when the connection's socket is torn
	// down, for whatever reason (client close, protocol error, timeout,
	// shutdown).
	OnClosed func(c *Connection)
}

// Connection owns one accepted socket after a successful WebSocket upgrade.
type Connection struct {
	ID string

	nc       net.Conn
	handlers Handlers

	inbound []byte // owned exclusively by the read-loop goroutine

	writeMu sync.Mutex

	state atomic.Int32

	pingSeq     atomic.Int64
	missedPongs atomic.Int32
	// ackedSeq is the highest ping sequence number a Pong has been received
	// for; a pending ping's timeout is moot once ackedSeq catches up to it.
	ackedSeq atomic.Int64

	heartbeatStop chan struct{}

	// heartbeatInterval and pongTimeoutDur default to the package constants
	// of the same shape but are overridable per-Connection so tests can
	// exercise the real timeout path without waiting on real 5s/15s clocks.
	heartbeatInterval time.Duration
	pongTimeoutDur    time.Duration

	closeOnce sync.Once
}

// New constructs a Connection around an already-upgraded socket. residual
// holds any bytes the sniffer read past the end of the HTTP handshake
// headers that belong to the WebSocket stream (spec.md §9: "bytes arriving
// between handshake sent and Connection attached must not be dropped").
func New(id string, nc net.Conn, residual []byte, h Handlers) *Connection {
	c := &Connection{
		ID:                id,
		nc:                nc,
		handlers:          h,
		heartbeatStop:     make(chan struct{}),
		heartbeatInterval: heartbeatInterval,
		pongTimeoutDur:    pongTimeout,
	}
	c.ackedSeq.Store(-1)
	if len(residual) > 0 {
		c.inbound = append(c.inbound, residual...)
	}
	c.state.Store(int32(StateHandshaking))
	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Run transitions the connection to LIVE, arms the heartbeat, and blocks
// reading frames until the socket closes. Callers run it on its own
// goroutine.
func (c *Connection) Run() {
	c.state.Store(int32(StateLive))
	telemetry.ConnectionsActive.Inc()
	go c.heartbeatLoop()

	buf := make([]byte, 4096)
	// Drain any residual bytes handed off at upgrade time before blocking
	// on the socket for more.
	c.drainBuffered()
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.inbound = append(c.inbound, buf[:n]...)
			c.drainBuffered()
		}
		if err != nil {
			c.shutdown()
			return
		}
		if c.State() == StateClosed {
			return
		}
	}
}

// drainBuffered decodes as many complete frames as currently sit in the
// inbound buffer, dispatching each one, and keeps any undecoded tail.
func (c *Connection) drainBuffered() {
	for {
		frame, consumed, err := wsproto.ProcessFrame(c.inbound)
		if err != nil {
			telemetry.Debugf("conn %s protocol error: %v", c.ID, err)
			c.shutdown()
			return
		}
		if consumed == 0 {
			return
		}
		c.inbound = c.inbound[consumed:]
		c.handleFrame(frame)
		if c.State() == StateClosed {
			return
		}
	}
}

func (c *Connection) handleFrame(f wsproto.Frame) {
	switch f.Opcode {
	case wsproto.OpText:
		telemetry.FramesTotal.WithLabelValues("text", "in").Inc()
		if c.handlers.OnText != nil {
			c.handlers.OnText(c, f.Payload)
		}
	case wsproto.OpPing:
		telemetry.FramesTotal.WithLabelValues("ping", "in").Inc()
		_ = c.writeFrame(wsproto.OpPong, f.Payload)
	case wsproto.OpPong:
		telemetry.FramesTotal.WithLabelValues("pong", "in").Inc()
		c.missedPongs.Store(0)
		c.ackedSeq.Store(c.pingSeq.Load() - 1)
	case wsproto.OpClose:
		telemetry.FramesTotal.WithLabelValues("close", "in").Inc()
		_ = c.writeFrame(wsproto.OpClose, f.Payload)
		c.stopHeartbeat()
		time.AfterFunc(closeGrace, c.shutdown)
	default:
		telemetry.Debugf("conn %s discarding unsupported opcode 0x%x", c.ID, f.Opcode)
	}
}

// SendText writes an unmasked Text frame to the client.
func (c *Connection) SendText(payload []byte) error {
	telemetry.FramesTotal.WithLabelValues("text", "out").Inc()
	return c.writeFrame(wsproto.OpText, payload)
}

func (c *Connection) writeFrame(opcode byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.State() == StateClosed {
		return fmt.Errorf("conn %s: closed", c.ID)
	}
	_, err := c.nc.Write(wsproto.EncodeFrame(opcode, payload))
	return err
}

func (c *Connection) heartbeatLoop() {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.heartbeatStop:
			return
		case <-ticker.C:
			if c.State() != StateLive {
				return
			}
			c.sendPing()
		}
	}
}

// sendPing writes a ping frame and arms an independent pong-timeout timer
// for it. Pings go out every heartbeatInterval (5s) but pongTimeout is 15s,
// so up to three pings can be outstanding at once — each gets its own timer
// rather than one shared timer that keeps getting reset, or a silent
// client's missed pongs would never accumulate past one.
func (c *Connection) sendPing() {
	n := c.pingSeq.Add(1) - 1
	payload := heartbeatPayload(n)
	telemetry.FramesTotal.WithLabelValues("ping", "out").Inc()
	if err := c.writeFrame(wsproto.OpPing, payload); err != nil {
		return
	}
	time.AfterFunc(c.pongTimeoutDur, func() { c.checkPongTimeout(n) })
}

func heartbeatPayload(n int64) []byte {
	body := fmt.Sprintf("ixwebsocket::heartbeat::5s::%d", n)
	buf := make([]byte, heartbeatPayloadLen)
	copy(buf, body)
	// remaining bytes are already zero (NUL), matching the reference
	// client's fixed 29-byte frame.
	return buf
}

// checkPongTimeout fires pongTimeout after the ping numbered seq was sent.
// If a Pong has been received for that ping (or a later one) by then,
// ackedSeq has caught up to seq and this is a no-op; otherwise it counts as
// a missed pong, closing the connection with 1011 once three such misses
// have accumulated without an intervening Pong.
func (c *Connection) checkPongTimeout(seq int64) {
	if c.State() != StateLive {
		return
	}
	if c.ackedSeq.Load() >= seq {
		return
	}
	telemetry.PongTimeouts.Inc()
	missed := c.missedPongs.Add(1)
	if missed < maxMissedPongs {
		return
	}
	c.state.Store(int32(StateTimedOut))
	payload := closePayload(1011, "Ping timeout")
	_ = c.writeFrame(wsproto.OpClose, payload)
	c.stopHeartbeat()
	time.AfterFunc(closeGrace, c.shutdown)
}

func closePayload(status uint16, reason string) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, status)
	buf.WriteString(reason)
	return buf.Bytes()
}

func (c *Connection) stopHeartbeat() {
	select {
	case <-c.heartbeatStop:
	default:
		close(c.heartbeatStop)
	}
	// Any pong-timeout timers still pending self-cancel: checkPongTimeout
	// bails out as soon as State() is no longer StateLive.
}

// Close sends a Close frame with the given status/reason and tears down the
// socket, used for server-initiated shutdown (status 1000).
func (c *Connection) Close(status uint16, reason string) {
	if c.State() == StateClosed {
		return
	}
	_ = c.writeFrame(wsproto.OpClose, closePayload(status, reason))
	c.shutdown()
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))
		c.stopHeartbeat()
		_ = c.nc.Close()
		if prev != StateHandshaking {
			telemetry.ConnectionsActive.Dec()
		}
		if c.handlers.OnClosed != nil {
			c.handlers.OnClosed(c)
		}
	})
}
