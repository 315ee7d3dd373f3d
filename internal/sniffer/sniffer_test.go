package sniffer

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeUpgrades struct {
	acceptedID string
	acceptedNC net.Conn
	residual   []byte
	done       chan struct{}
}

func newFakeUpgrades() *fakeUpgrades { return &fakeUpgrades{done: make(chan struct{})} }

func (f *fakeUpgrades) Accept(connID string, nc net.Conn, residual []byte) {
	f.acceptedID = connID
	f.acceptedNC = nc
	f.residual = residual
	close(f.done)
}

type fakeImages struct {
	preview     []byte
	previewCT   string
	astroBody   []byte
	astroCT     string
	astroExists bool
}

func (f *fakeImages) PreviewImage() ([]byte, string) { return f.preview, f.previewCT }

func (f *fakeImages) AstroFile(dir, file string) ([]byte, string, bool) {
	if !f.astroExists {
		return nil, "", false
	}
	return f.astroBody, f.astroCT, true
}

func startSniffer(t *testing.T, upgrades UpgradeHandler, images ImageStore) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := New(ln, upgrades, images)
	go s.Serve()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr()
}

func TestSnifferUpgradesWebSocketHandshake(t *testing.T) {
	up := newFakeUpgrades()
	addr := startSniffer(t, up, &fakeImages{})

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	req := "GET /SmartScope-1.0/mountControlEndpoint HTTP/1.1\r\n" +
		"Host: origin\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "101")

	var acceptLine string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) == "" {
			break
		}
		if strings.HasPrefix(line, "Sec-WebSocket-Accept:") {
			acceptLine = line
		}
	}
	require.Contains(t, acceptLine, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")

	select {
	case <-up.done:
	case <-time.After(time.Second):
		t.Fatal("upgrade handler was never invoked")
	}
	require.NotEmpty(t, up.acceptedID)
}

func TestSnifferServesPreviewImage(t *testing.T) {
	images := &fakeImages{preview: []byte("jpeg-bytes"), previewCT: "image/jpeg"}
	addr := startSniffer(t, newFakeUpgrades(), images)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	req := "GET /SmartScope-1.0/dev2/Images/Temp/3.jpg HTTP/1.1\r\nHost: origin\r\n\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "200")

	var body strings.Builder
	seenHeaders := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if !seenHeaders {
			if strings.TrimSpace(line) == "" {
				seenHeaders = true
			}
			continue
		}
		body.WriteString(line)
	}
	require.Contains(t, body.String(), "jpeg-bytes")
}

func TestSnifferReturns404ForUnknownPath(t *testing.T) {
	addr := startSniffer(t, newFakeUpgrades(), &fakeImages{})

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	req := "GET /unknown HTTP/1.1\r\nHost: origin\r\n\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "404")
}

func TestAstroDirFileParsesTrailingSegments(t *testing.T) {
	dir, file := astroDirFile("/SmartScope-1.0/dev2/Images/Astrophotography/2026-07-01/0.tiff")
	require.Equal(t, "2026-07-01", dir)
	require.Equal(t, "0.tiff", file)
}

func TestContentTypeForPath(t *testing.T) {
	require.Equal(t, "image/jpeg", ContentTypeForPath("foo.jpg"))
	require.Equal(t, "image/tiff", ContentTypeForPath("foo.tiff"))
}
