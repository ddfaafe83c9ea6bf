// pkg/sip/client/client.go
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/truesip/sespcl/pkg/common"
	"github.com/truesip/sespcl/pkg/log"
	"github.com/truesip/sespcl/pkg/metrics"
	"github.com/truesip/sespcl/pkg/sip/auth"
	"github.com/truesip/sespcl/pkg/sip/message"
	"github.com/truesip/sespcl/pkg/sip/transport"
	"github.com/truesip/sespcl/pkg/store"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned before any network attempt while the trunk
// breaker is open.
var ErrCircuitOpen = errors.New("trunk circuit breaker open")

// Config holds the immutable trunk connection parameters.
type Config struct {
	ProxyHost   string
	ProxyPort   int
	LocalPort   int
	Username    string
	Password    string
	Domain      string
	DisplayName string
	UserAgent   string

	// SkipRegister places INVITEs without a prior REGISTER.
	SkipRegister bool

	SignalingTimeout time.Duration
	ProbeTimeout     time.Duration
}

// Client is a signaling-only SIP user agent client toward one trunk proxy.
// Safe for concurrent use; each exchange owns its own socket.
type Client struct {
	cfg     Config
	logger  *log.Logger
	net     *transport.UDP
	breaker *common.CircuitBreaker // optional
	calls   store.CallStore

	localIP string

	// Registration state and the cached challenge are shared across all
	// calls on one client. regMu serializes whole registration attempts,
	// so concurrent callers piggyback on a single in-flight attempt and
	// the cached realm/nonce cannot be torn by a concurrent challenge.
	regMu      sync.Mutex
	registered bool
	challenge  auth.Challenge
	challenged bool

	cseq atomic.Uint32
}

// New creates a client. The breaker may be nil to disable fail-fast.
func New(cfg Config, calls store.CallStore, breaker *common.CircuitBreaker, logger *log.Logger) *Client {
	if logger == nil {
		logger = &log.Logger{Logger: zap.NewNop()}
	}
	if cfg.Domain == "" {
		cfg.Domain = cfg.ProxyHost
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sespcl/1.0"
	}
	if cfg.SignalingTimeout <= 0 {
		cfg.SignalingTimeout = transport.SignalingTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = transport.ProbeTimeout
	}
	if calls == nil {
		calls = store.NewMemoryStore(logger.Logger)
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		net:     transport.New(logger.Logger),
		breaker: breaker,
		calls:   calls,
		localIP: localIPv4(),
	}
}

func (c *Client) proxyAddr() string {
	return net.JoinHostPort(c.cfg.ProxyHost, strconv.Itoa(c.cfg.ProxyPort))
}

func (c *Client) registrarURI() string {
	return "sip:" + c.cfg.Domain
}

func (c *Client) contactURI() string {
	return fmt.Sprintf("sip:%s@%s:%d", c.cfg.Username, c.localIP, c.cfg.LocalPort)
}

func (c *Client) nextCSeq() uint32 {
	return c.cseq.Add(1)
}

// cachedChallenge returns the last observed digest challenge, if any.
func (c *Client) cachedChallenge() (auth.Challenge, bool) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	return c.challenge, c.challenged
}

// exchange performs one request/response round trip against the proxy,
// recording metrics and breaker outcomes.
func (c *Client) exchange(ctx context.Context, req *message.Request, timeout time.Duration) (*message.Response, error) {
	addr := c.proxyAddr()

	if c.breaker != nil && !c.breaker.AllowRequest() {
		metrics.RecordTransportError("circuit_open")
		return nil, &transport.Error{Op: "send", Addr: addr, Err: ErrCircuitOpen}
	}

	start := time.Now()
	data, err := c.net.Exchange(ctx, addr, req.Bytes(), timeout)
	metrics.ObserveExchangeDuration(req.Method, time.Since(start))
	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		var timeoutErr *transport.TimeoutError
		if errors.As(err, &timeoutErr) {
			metrics.RecordTransportError("timeout")
		} else {
			metrics.RecordTransportError("error")
		}
		c.logger.LogTransportFailure(addr, time.Since(start), err)
		return nil, err
	}
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}

	resp, err := message.ParseResponse(data)
	if err != nil {
		metrics.RecordTransportError("malformed")
		return nil, err
	}

	metrics.RecordExchange(req.Method, statusClass(resp.StatusCode))
	return resp, nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// coreHeaders appends the headers every request carries.
func (c *Client) coreHeaders(req *message.Request, callID string, from, to message.NameAddr, seq uint32) {
	req.AppendHeader("Via", message.Via{
		Host:   c.localIP,
		Port:   c.cfg.LocalPort,
		Params: []message.Param{{Name: "branch", Value: newBranch()}},
	})
	req.AppendHeader("Max-Forwards", message.Text("70"))
	req.AppendHeader("From", from)
	req.AppendHeader("To", to)
	req.AppendHeader("Call-ID", message.Text(callID))
	req.AppendHeader("CSeq", message.CSeq{Seq: seq, Method: req.Method})
}

func randomToken(n int) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > 0 && n < len(token) {
		token = token[:n]
	}
	return token
}

// newCallID combines timestamp, random token and local IP; unique for the
// process lifetime across concurrent calls.
func (c *Client) newCallID() string {
	return fmt.Sprintf("%d%s@%s", time.Now().UnixMilli(), randomToken(8), c.localIP)
}

func newBranch() string {
	// z9hG4bK is the RFC3261 magic cookie.
	return "z9hG4bK" + randomToken(10)
}

func newTag() string {
	return randomToken(8)
}

// localIPv4 returns the first non-loopback, non-link-local IPv4 address,
// falling back to 127.0.0.1.
func localIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip.String()
	}
	return "127.0.0.1"
}
