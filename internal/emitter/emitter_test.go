package emitter

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/originsim/origin-server/internal/conn"
	"github.com/originsim/origin-server/internal/state"
	"github.com/originsim/origin-server/internal/wsproto"
)

func newTestConn(t *testing.T, id string) (*conn.Connection, net.Conn) {
	t.Helper()
	// A loopback TCP pair rather than net.Pipe: Broadcast and CloseAll write
	// synchronously, and an unbuffered pipe write would block until the test
	// reads, which it only does after those calls return.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, err := ln.Accept()
	require.NoError(t, err)
	c := conn.New(id, server, nil, conn.Handlers{})
	go c.Run()
	t.Cleanup(func() { client.Close() })
	return c, client
}

func readMessage(t *testing.T, client net.Conn) map[string]any {
	t.Helper()
	buf := make([]byte, 8192)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	f, _, err := wsproto.ProcessFrame(buf[:n])
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(f.Payload, &out))
	return out
}

func TestRegisterAndBroadcastDeliversToAllConnections(t *testing.T) {
	store := state.NewStore(nil, 1)
	e := New(store)

	c1, client1 := newTestConn(t, "a")
	c2, client2 := newTestConn(t, "b")
	e.Register(c1)
	e.Register(c2)

	e.Broadcast(map[string]any{"Command": "Ping"})

	msg1 := readMessage(t, client1)
	msg2 := readMessage(t, client2)
	require.Equal(t, "Ping", msg1["Command"])
	require.Equal(t, "Ping", msg2["Command"])
}

func TestUnregisterStopsDelivery(t *testing.T) {
	store := state.NewStore(nil, 1)
	e := New(store)

	c1, client1 := newTestConn(t, "a")
	e.Register(c1)
	e.Unregister(c1)

	e.Broadcast(map[string]any{"Command": "Ping"})

	client1.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 64)
	_, err := client1.Read(buf)
	require.Error(t, err)
}

func TestBroadcastMountStatusAdvancesCoordinatesAndIncludesRaDec(t *testing.T) {
	store := state.NewStore(nil, 1)
	e := New(store)

	var before float64
	store.View(func(s state.TelescopeState) { before = s.Mount.Ra })

	c, client := newTestConn(t, "a")
	e.Register(c)

	e.BroadcastMountStatus()
	msg := readMessage(t, client)

	require.Equal(t, "GetStatus", msg["Command"])
	require.Equal(t, "Mount", msg["Source"])
	require.Equal(t, "Notification", msg["Type"])
	require.Contains(t, msg, "Ra")
	require.Contains(t, msg, "Dec")

	var after float64
	store.View(func(s state.TelescopeState) { after = s.Mount.Ra })
	require.NotEqual(t, before, after)
}

func TestCloseAllSendsCloseFrameToEveryConnection(t *testing.T) {
	store := state.NewStore(nil, 1)
	e := New(store)

	c1, client1 := newTestConn(t, "a")
	c2, client2 := newTestConn(t, "b")
	e.Register(c1)
	e.Register(c2)

	e.CloseAll()

	for _, client := range []net.Conn{client1, client2} {
		buf := make([]byte, 64)
		client.SetReadDeadline(time.Now().Add(time.Second))
		n, err := client.Read(buf)
		require.NoError(t, err)
		f, _, err := wsproto.ProcessFrame(buf[:n])
		require.NoError(t, err)
		require.Equal(t, wsproto.OpClose, f.Opcode)
	}

	require.Eventually(t, func() bool {
		return c1.State() == conn.StateClosed && c2.State() == conn.StateClosed
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchTickFollowsCoprimeSchedule(t *testing.T) {
	var mount, focuser, camera, task, envDisk, dewHeater, orient int

	// Exercise the coprime divisors directly rather than the real broadcast
	// methods, since those require live connections.
	due := func(n, every int64) bool { return n%every == 0 }
	for n := int64(1); n <= 30; n++ {
		if due(n, 1) {
			mount++
		}
		if due(n, focuserEvery) {
			focuser++
		}
		if due(n, cameraEvery) {
			camera++
		}
		if due(n, taskEvery) {
			task++
		}
		if due(n, envDiskEvery) {
			envDisk++
		}
		if due(n, dewHeaterEvery) {
			dewHeater++
		}
		if due(n, orientEvery) {
			orient++
		}
	}
	require.Equal(t, 30, mount)
	require.Equal(t, 15, focuser)
	require.Equal(t, 10, camera)
	require.Equal(t, 6, task)
	require.Equal(t, 3, envDisk)
	require.Equal(t, 2, dewHeater)
	require.Equal(t, 1, orient)
}
