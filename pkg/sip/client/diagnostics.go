// pkg/sip/client/diagnostics.go
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/truesip/sespcl/pkg/sip/message"
	"github.com/truesip/sespcl/pkg/sip/transport"
)

// Connectivity classifications.
const (
	ConnOK               = "ok"
	ConnTimeout          = "timeout"
	ConnRefused          = "refused"
	ConnTransport        = "transport"
	ConnUnexpectedStatus = "unexpected_status"
)

// ConnectivityResult is the outcome of a reachability test.
type ConnectivityResult struct {
	Success         bool
	Classification  string
	Message         string
	Troubleshooting string
}

// TestConnectivity probes the trunk proxy and, if the probe passes, runs an
// OPTIONS exchange. 200, 404 and 405 all count as reachable: plenty of SIP
// servers reject OPTIONS yet are clearly alive. Advisory only, never on
// the call path.
func (c *Client) TestConnectivity(ctx context.Context) *ConnectivityResult {
	addr := c.proxyAddr()

	if err := transport.Probe(addr); err != nil {
		if transport.IsRefused(err) {
			return &ConnectivityResult{
				Classification:  ConnRefused,
				Message:         fmt.Sprintf("connection refused by %s", addr),
				Troubleshooting: "the host is up but nothing listens on that port; check proxy_port and that the SIP service is running",
			}
		}
		return &ConnectivityResult{
			Classification:  ConnTransport,
			Message:         err.Error(),
			Troubleshooting: "check proxy_host resolves and the local network allows outbound UDP",
		}
	}

	req := c.optionsRequest(c.newCallID(), c.nextCSeq())
	resp, err := c.exchange(ctx, req, c.cfg.ProbeTimeout)
	if err != nil {
		var timeoutErr *transport.TimeoutError
		if errors.As(err, &timeoutErr) {
			return &ConnectivityResult{
				Classification:  ConnTimeout,
				Message:         timeoutErr.Error(),
				Troubleshooting: "verify proxy_host and proxy_port, and that a firewall is not dropping UDP SIP traffic",
			}
		}
		return &ConnectivityResult{
			Classification:  ConnTransport,
			Message:         err.Error(),
			Troubleshooting: "network fault while talking SIP; check connectivity to the proxy",
		}
	}

	switch resp.StatusCode {
	case 200, 404, 405:
		return &ConnectivityResult{
			Success:        true,
			Classification: ConnOK,
			Message:        fmt.Sprintf("SIP proxy reachable (status %d %s)", resp.StatusCode, resp.Reason),
		}
	default:
		return &ConnectivityResult{
			Classification:  ConnUnexpectedStatus,
			Message:         fmt.Sprintf("proxy answered OPTIONS with %d %s", resp.StatusCode, resp.Reason),
			Troubleshooting: "the proxy speaks SIP but rejected the probe; check account and domain configuration",
		}
	}
}

func (c *Client) optionsRequest(callID string, seq uint32) *message.Request {
	req := message.NewRequest(message.MethodOptions, c.registrarURI())

	from := message.NameAddr{
		URI:    fmt.Sprintf("sip:%s@%s", c.cfg.Username, c.cfg.Domain),
		Params: []message.Param{{Name: "tag", Value: newTag()}},
	}
	to := message.NameAddr{URI: c.registrarURI()}

	c.coreHeaders(req, callID, from, to, seq)
	req.AppendHeader("User-Agent", message.Text(c.cfg.UserAgent))
	return req
}
