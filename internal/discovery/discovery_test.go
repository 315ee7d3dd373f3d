package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityPayloadFormat(t *testing.T) {
	got := identityPayload("140020", "192.168.1.5")
	require.Equal(t, "Identity:Origin-140020Z Origin IP Address = 192.168.1.5", got)
}

func TestLocalIPv4AddrsSkipsLoopback(t *testing.T) {
	addrs, err := localIPv4Addrs()
	require.NoError(t, err)
	for _, a := range addrs {
		require.NotEqual(t, "127.0.0.1", a.ip)
	}
}

func TestNewOpensASocketAndStopCloses(t *testing.T) {
	b, err := New(func() string { return "140020" })
	require.NoError(t, err)
	require.NotNil(t, b.conn)
	b.Stop()
}
