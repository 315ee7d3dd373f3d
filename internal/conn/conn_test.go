package conn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/originsim/origin-server/internal/wsproto"
)

func maskPayload(payload, key []byte) []byte {
	out := make([]byte, len(payload))
	for i := range payload {
		out[i] = payload[i] ^ key[i%4]
	}
	return out
}

func clientTextFrame(payload []byte) []byte {
	key := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	masked := maskPayload(payload, key)
	buf := []byte{0x80 | wsproto.OpText, 0x80 | byte(len(masked))}
	buf = append(buf, key...)
	buf = append(buf, masked...)
	return buf
}

func TestConnectionDispatchesTextFrame(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	received := make(chan []byte, 1)
	c := New("conn-1", server, nil, Handlers{
		OnText: func(c *Connection, payload []byte) {
			received <- payload
		},
	})
	go c.Run()

	payload := []byte(`{"Command":"GetVersion"}`)
	_, err := client.Write(clientTextFrame(payload))
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Equal(t, payload, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnText")
	}

	require.Equal(t, StateLive, c.State())
}

func TestConnectionEchoesPing(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := New("conn-2", server, nil, Handlers{})
	go c.Run()

	pingPayload := maskPayload([]byte("ping-body"), []byte{1, 2, 3, 4})
	frame := []byte{0x80 | wsproto.OpPing, 0x80 | byte(len(pingPayload)), 1, 2, 3, 4}
	frame = append(frame, pingPayload...)
	_, err := client.Write(frame)
	require.NoError(t, err)

	readBuf := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(readBuf)
	require.NoError(t, err)

	f, consumed, err := wsproto.ProcessFrame(readBuf[:n])
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, wsproto.OpPong, f.Opcode)
	require.Equal(t, []byte("ping-body"), f.Payload)
}

func TestConnectionRejectsProtocolErrorAndCloses(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := make(chan struct{})
	c := New("conn-3", server, nil, Handlers{
		OnClosed: func(c *Connection) { close(closed) },
	})
	go c.Run()

	// Unmasked frame from a client is a protocol violation.
	bad := wsproto.EncodeFrame(wsproto.OpText, []byte("no mask"))
	_, err := client.Write(bad)
	require.NoError(t, err)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("connection did not close on protocol error")
	}
	require.Equal(t, StateClosed, c.State())
}

func TestHeartbeatPayloadIsFixedLength(t *testing.T) {
	require.Len(t, heartbeatPayload(0), heartbeatPayloadLen)
	require.Len(t, heartbeatPayload(12345), heartbeatPayloadLen)
}

func TestClosePayloadEncodesStatusAndReason(t *testing.T) {
	payload := closePayload(1011, "Ping timeout")
	require.Equal(t, byte(0x03), payload[0])
	require.Equal(t, byte(0xF3), payload[1])
	require.Equal(t, "Ping timeout", string(payload[2:]))
}

func TestSilentClientIsClosedAfterThreeMissedPongs(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := make(chan struct{})
	c := New("conn-4", server, nil, Handlers{
		OnClosed: func(c *Connection) { close(closed) },
	})
	c.heartbeatInterval = 10 * time.Millisecond
	c.pongTimeoutDur = 30 * time.Millisecond
	go c.Run()

	// Drain frames the server writes (pings, then the final Close) without
	// ever answering with a Pong, so missedPongs accumulates for real.
	go func() {
		buf := make([]byte, 256)
		for {
			client.SetReadDeadline(time.Now().Add(2 * time.Second))
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not evicted after repeated missed pongs")
	}
	require.Equal(t, StateClosed, c.State())
	require.Equal(t, int32(maxMissedPongs), c.missedPongs.Load())
}

func TestPongResetsMissedCountAndKeepsConnectionAlive(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := New("conn-5", server, nil, Handlers{})
	c.heartbeatInterval = 10 * time.Millisecond
	c.pongTimeoutDur = 30 * time.Millisecond
	go c.Run()

	pongFrame := func() []byte {
		key := []byte{1, 2, 3, 4}
		return append([]byte{0x80 | wsproto.OpPong, 0x80}, key...)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		buf := make([]byte, 256)
		for {
			select {
			case <-stop:
				return
			default:
			}
			client.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
			if _, err := client.Read(buf); err != nil {
				continue
			}
			_, _ = client.Write(pongFrame())
		}
	}()

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, StateLive, c.State())
}
