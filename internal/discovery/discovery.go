// Package discovery implements the UDP presence beacon described in
// spec.md §4.7/§6: every 5s, for each non-loopback IPv4 interface address,
// broadcast an identity string to port 55555 so LAN clients can find the
// device without knowing its address up front.
package discovery

import (
	"fmt"
	"net"
	"time"

	"github.com/originsim/origin-server/internal/telemetry"
)

const (
	interval      = 5 * time.Second
	broadcastPort = 55555
)

// Identity supplies the device identifier the beacon embeds in its
// payload (the reference device's fixed serial-like broadcast id).
type Identity func() string

// Beacon periodically broadcasts a UDP identity datagram on every
// non-loopback IPv4 interface.
type Beacon struct {
	identity Identity
	conn     *net.UDPConn
	stop     chan struct{}
}

// New builds a Beacon. It owns a single UDP socket used to send every
// broadcast datagram.
func New(identity Identity) (*Beacon, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("discovery: open broadcast socket: %w", err)
	}
	if err := conn.SetWriteBuffer(1 << 16); err != nil {
		telemetry.Debugf("discovery: set write buffer: %v", err)
	}
	return &Beacon{identity: identity, conn: conn, stop: make(chan struct{})}, nil
}

// Run sends a broadcast immediately and then every 5s until Stop is
// called. Meant to run on its own goroutine for the life of the process.
func (b *Beacon) Run() {
	b.sendAll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.sendAll()
		}
	}
}

// Stop ends the beacon loop and closes its socket.
func (b *Beacon) Stop() {
	close(b.stop)
	b.conn.Close()
}

func (b *Beacon) sendAll() {
	addrs, err := localIPv4Addrs()
	if err != nil {
		telemetry.Debugf("discovery: enumerate interfaces: %v", err)
		telemetry.DiscoveryErrors.Inc()
		return
	}

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: broadcastPort}
	for _, addr := range addrs {
		payload := identityPayload(b.identity(), addr.ip)
		if _, err := b.conn.WriteToUDP([]byte(payload), dst); err != nil {
			telemetry.Debugf("discovery: send on %s (%s): %v", addr.iface, addr.ip, err)
			telemetry.DiscoveryErrors.Inc()
			continue
		}
		telemetry.DiscoverySends.WithLabelValues(addr.iface).Inc()
	}
}

// identityPayload builds the fixed-format beacon text, e.g.
// "Identity:Origin-140020Z Origin IP Address = 192.168.1.5" for id "140020".
func identityPayload(id, ip string) string {
	return fmt.Sprintf("Identity:Origin-%sZ Origin IP Address = %s", id, ip)
}

type ifaceAddr struct {
	iface string
	ip    string
}

// localIPv4Addrs returns the IPv4 address of every non-loopback interface
// that is currently up.
func localIPv4Addrs() ([]ifaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []ifaceAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			out = append(out, ifaceAddr{iface: iface.Name, ip: ip4.String()})
		}
	}
	return out, nil
}
