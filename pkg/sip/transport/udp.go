// pkg/sip/transport/udp.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Default exchange windows. Signaling waits the full SIP-over-UDP budget;
// the reachability probe fails fast.
const (
	SignalingTimeout = 30 * time.Second
	ProbeTimeout     = 5 * time.Second

	// How long a probe listens for an ICMP port-unreachable before
	// concluding the datagram was at least not refused.
	probeICMPWait = 500 * time.Millisecond

	maxDatagram = 65535
)

// Error is a network-level send/socket fault. Always caller-recoverable.
type Error struct {
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sip transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TimeoutError reports that no response arrived within the exchange window.
// A single dropped datagram is an outright failure: there is no
// retransmission, unlike full RFC3261 timer behavior.
type TimeoutError struct {
	Addr    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no SIP response from %s within %s", e.Addr, e.Timeout)
}

// UDP performs one-shot request/response exchanges. Each exchange owns its
// socket, created and closed on every exit path, so response correlation is
// per-socket and datagrams from earlier exchanges cannot be misrouted.
type UDP struct {
	logger *zap.Logger
}

// New creates a UDP exchanger.
func New(logger *zap.Logger) *UDP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UDP{logger: logger}
}

// Exchange sends payload to addr and waits for a single response datagram.
// The context deadline, when earlier than timeout, bounds the exchange.
func (u *UDP) Exchange(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = SignalingTimeout
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &Error{Op: "resolve", Addr: addr, Err: err}
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, &Error{Op: "dial", Addr: addr, Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &Error{Op: "deadline", Addr: addr, Err: err}
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, &Error{Op: "send", Addr: addr, Err: err}
	}

	buf := make([]byte, maxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &TimeoutError{Addr: addr, Timeout: timeout}
		}
		return nil, &Error{Op: "receive", Addr: addr, Err: err}
	}

	u.logger.Debug("SIP exchange complete",
		zap.String("addr", addr),
		zap.Int("sent_bytes", len(payload)),
		zap.Int("received_bytes", n))

	return buf[:n], nil
}

// Probe sends a minimal datagram to addr and reports immediate socket
// faults. Silence is not an error: a quiet trunk may still be alive, and the
// following OPTIONS exchange settles the question.
func Probe(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return &Error{Op: "resolve", Addr: addr, Err: err}
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return &Error{Op: "dial", Addr: addr, Err: err}
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("\r\n\r\n")); err != nil {
		return &Error{Op: "probe", Addr: addr, Err: err}
	}

	// A connected UDP socket surfaces ICMP port-unreachable on the next
	// read. Anything else, timeout included, passes the probe.
	if err := conn.SetReadDeadline(time.Now().Add(probeICMPWait)); err != nil {
		return nil
	}
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil && IsRefused(err) {
		return &Error{Op: "probe", Addr: addr, Err: err}
	}
	return nil
}

// IsRefused reports whether err is an ICMP connection-refused fault.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
