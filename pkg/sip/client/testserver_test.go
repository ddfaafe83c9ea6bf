package client

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// trunkServer is a scripted UDP trunk: it answers each SIP request with the
// next queued response and records every request it sees. Blank datagrams
// (the reachability probe) are ignored so they never consume a script entry.
type trunkServer struct {
	t    *testing.T
	conn net.PacketConn

	mu        sync.Mutex
	responses []string
	requests  []string
}

func newTrunkServer(t *testing.T) *trunkServer {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &trunkServer{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	go s.serve()
	return s
}

func (s *trunkServer) serve() {
	buf := make([]byte, 65535)
	for {
		n, peer, err := s.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		payload := string(buf[:n])
		if strings.TrimSpace(payload) == "" {
			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, payload)
		var resp string
		if len(s.responses) > 0 {
			resp = s.responses[0]
			s.responses = s.responses[1:]
		}
		s.mu.Unlock()

		if resp != "" {
			if _, err := s.conn.WriteTo([]byte(resp), peer); err != nil {
				return
			}
		}
	}
}

func (s *trunkServer) enqueue(responses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}

func (s *trunkServer) hostPort() (string, int) {
	addr := s.conn.LocalAddr().(*net.UDPAddr)
	return addr.IP.String(), addr.Port
}

func (s *trunkServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *trunkServer) request(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Less(s.t, i, len(s.requests), "request %d never arrived", i)
	return s.requests[i]
}

func sipResponse(status int, reason string, headers ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SIP/2.0 %d %s\r\n", status, reason)
	for _, h := range headers {
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("Content-Length: 0\r\n\r\n")
	return b.String()
}
