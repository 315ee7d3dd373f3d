// Package sniffer implements the single-port HTTP/WebSocket protocol
// sniffer described in spec.md §4.1: a raw TCP listener whose accepted
// sockets buffer bytes until a complete HTTP header block is seen, then get
// routed to a WebSocket upgrade, an image HTTP response, or a 404 — the
// same "own the socket until handoff" shape as the teacher's http.Hijacker
// based upgrade, just working off a raw accept loop instead of net/http's
// request router.
package sniffer

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/originsim/origin-server/internal/telemetry"
	"github.com/originsim/origin-server/internal/wsproto"
)

const (
	headerCap = 8192

	mountControlPath = "/SmartScope-1.0/mountControlEndpoint"
	tempImagePrefix  = "/SmartScope-1.0/dev2/Images/Temp/"
	astroPathMarker  = "/SmartScope-1.0/dev2/Images/Astrophotography/"
)

// UpgradeHandler receives ownership of a socket once the WebSocket
// handshake has succeeded, along with any bytes already read past the end
// of the header block.
type UpgradeHandler interface {
	Accept(connID string, nc net.Conn, residual []byte)
}

// ImageStore answers the HTTP image routes. PreviewImage returns the
// current preview blob and its content type. AstroFile resolves a stored
// astrophotography file by directory and file name.
type ImageStore interface {
	PreviewImage() (body []byte, contentType string)
	AstroFile(dir, file string) (body []byte, contentType string, ok bool)
}

// Sniffer owns the TCP listener and routes each accepted connection.
type Sniffer struct {
	ln       net.Listener
	upgrades UpgradeHandler
	images   ImageStore
}

// New wraps an already-opened listener.
func New(ln net.Listener, upgrades UpgradeHandler, images ImageStore) *Sniffer {
	return &Sniffer{ln: ln, upgrades: upgrades, images: images}
}

// Serve accepts connections until the listener is closed.
func (s *Sniffer) Serve() error {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(nc)
	}
}

func (s *Sniffer) handle(nc net.Conn) {
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		n, err := nc.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
				s.route(nc, buf[:idx+4], buf[idx+4:])
				return
			}
			if len(buf) > headerCap {
				telemetry.Debugf("sniffer: header cap exceeded from %s", nc.RemoteAddr())
				_ = nc.Close()
				return
			}
		}
		if err != nil {
			_ = nc.Close()
			return
		}
	}
}

func (s *Sniffer) route(nc net.Conn, headerBlock, residual []byte) {
	method, reqPath, headers, ok := parseHeaders(headerBlock)
	if !ok {
		_ = nc.Close()
		return
	}

	if isUpgradeRequest(headers) && reqPath == mountControlPath {
		s.handleUpgrade(nc, headers, residual)
		return
	}
	if method == "GET" && strings.HasPrefix(reqPath, tempImagePrefix) {
		s.serveImage(nc, func() ([]byte, string, bool) {
			body, ct := s.images.PreviewImage()
			return body, ct, body != nil
		})
		return
	}
	if method == "GET" && strings.Contains(reqPath, astroPathMarker) {
		dir, file := astroDirFile(reqPath)
		s.serveImage(nc, func() ([]byte, string, bool) {
			return s.images.AstroFile(dir, file)
		})
		return
	}
	writeResponse(nc, 404, "Not Found", "text/plain", []byte("not found"))
	_ = nc.Close()
}

func (s *Sniffer) handleUpgrade(nc net.Conn, headers textproto.MIMEHeader, residual []byte) {
	key := headers.Get("Sec-Websocket-Key")
	if key == "" {
		writeResponse(nc, 400, "Bad Request", "text/plain", []byte("missing Sec-WebSocket-Key"))
		_ = nc.Close()
		return
	}
	accept := wsproto.AcceptKey(key)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := nc.Write([]byte(resp)); err != nil {
		_ = nc.Close()
		return
	}
	id := uuid.NewString()
	s.upgrades.Accept(id, nc, residual)
}

func (s *Sniffer) serveImage(nc net.Conn, lookup func() ([]byte, string, bool)) {
	body, contentType, ok := lookup()
	if !ok {
		writeResponse(nc, 404, "Not Found", "text/plain", []byte("not found"))
		_ = nc.Close()
		return
	}
	writeResponse(nc, 200, "OK", contentType, body)
	_ = nc.Close()
}

// astroDirFile resolves the trailing two path segments ("<dir>/<file>")
// from a path containing astroPathMarker.
func astroDirFile(reqPath string) (dir, file string) {
	idx := strings.Index(reqPath, astroPathMarker)
	rest := reqPath[idx+len(astroPathMarker):]
	rest = strings.Trim(rest, "/")
	segs := strings.Split(rest, "/")
	if len(segs) < 2 {
		return "", ""
	}
	n := len(segs)
	return segs[n-2], segs[n-1]
}

func isUpgradeRequest(headers textproto.MIMEHeader) bool {
	return tokenListContains(headers.Get("Connection"), "upgrade") &&
		strings.EqualFold(strings.TrimSpace(headers.Get("Upgrade")), "websocket")
}

func tokenListContains(headerVal, token string) bool {
	token = strings.ToLower(token)
	for _, v := range strings.Split(headerVal, ",") {
		if strings.TrimSpace(strings.ToLower(v)) == token {
			return true
		}
	}
	return false
}

// parseHeaders splits the buffered header block into method, path, and a
// canonical header map. A request line with fewer than 3 space-separated
// parts is rejected (spec.md §4.1).
func parseHeaders(block []byte) (method, reqPath string, headers textproto.MIMEHeader, ok bool) {
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(block)))
	requestLine, err := reader.ReadLine()
	if err != nil {
		return "", "", nil, false
	}
	parts := strings.Fields(requestLine)
	if len(parts) < 3 {
		return "", "", nil, false
	}
	hdrs, err := reader.ReadMIMEHeader()
	if err != nil && len(hdrs) == 0 {
		return "", "", nil, false
	}
	return strings.ToUpper(parts[0]), parts[1], hdrs, true
}

func writeResponse(nc net.Conn, status int, statusText, contentType string, body []byte) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, statusText)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&b, "Content-Length: %s\r\n", strconv.Itoa(len(body)))
	b.WriteString("Cache-Control: no-cache\r\n")
	b.WriteString("Access-Control-Allow-Origin: *\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")
	b.Write(body)
	_, _ = nc.Write(b.Bytes())
}

// ContentTypeForPath infers the HTTP content type for an astrophotography
// file from its extension, per spec.md §4.1 rule 3.
func ContentTypeForPath(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/tiff"
	}
}
