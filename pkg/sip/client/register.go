// pkg/sip/client/register.go
package client

import (
	"context"
	"fmt"

	"github.com/truesip/sespcl/pkg/metrics"
	"github.com/truesip/sespcl/pkg/sip/auth"
	"github.com/truesip/sespcl/pkg/sip/message"
)

// Register ensures the client is registered with the trunk proxy.
//
// Idempotent: while registered, it returns true without a network round
// trip. A 401/407 challenge is answered exactly once with digest
// credentials and an incremented CSeq; any further challenge or non-200 is
// terminal. SIP-level rejection resolves to false; errors are reserved for
// transport and protocol parsing faults.
//
// Attempts are serialized: concurrent callers block on the in-flight
// attempt and observe its outcome through the registered flag.
func (c *Client) Register(ctx context.Context) (bool, error) {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	if c.registered {
		return true, nil
	}

	callID := c.newCallID()
	fromTag := newTag()

	req := c.registerRequest(callID, fromTag, c.nextCSeq(), "")
	resp, err := c.exchange(ctx, req, c.cfg.SignalingTimeout)
	if err != nil {
		return false, err
	}

	if resp.StatusCode == 401 || resp.StatusCode == 407 {
		header := resp.Header("WWW-Authenticate")
		if header == "" {
			header = resp.Header("Proxy-Authenticate")
		}
		challenge, err := auth.ParseChallenge(header)
		if err != nil {
			return false, err
		}
		c.challenge = challenge
		c.challenged = true

		authorization := auth.Authorization(c.cfg.Username, c.cfg.Password,
			challenge, message.MethodRegister, c.registrarURI())
		req = c.registerRequest(callID, fromTag, c.nextCSeq(), authorization)
		resp, err = c.exchange(ctx, req, c.cfg.SignalingTimeout)
		if err != nil {
			return false, err
		}
	}

	if resp.Success() {
		c.registered = true
		metrics.SetRegistered(true)
		c.logger.LogRegistrationChange(true, resp.StatusCode)
		return true, nil
	}

	metrics.SetRegistered(false)
	c.logger.LogRegistrationChange(false, resp.StatusCode)
	return false, nil
}

func (c *Client) registerRequest(callID, fromTag string, seq uint32, authorization string) *message.Request {
	req := message.NewRequest(message.MethodRegister, c.registrarURI())

	aor := fmt.Sprintf("sip:%s@%s", c.cfg.Username, c.cfg.Domain)
	from := message.NameAddr{
		Display: c.cfg.DisplayName,
		URI:     aor,
		Params:  []message.Param{{Name: "tag", Value: fromTag}},
	}
	to := message.NameAddr{URI: aor}

	c.coreHeaders(req, callID, from, to, seq)
	req.AppendHeader("Contact", message.NameAddr{URI: c.contactURI()})
	req.AppendHeader("Expires", message.Text("3600"))
	if authorization != "" {
		req.AppendHeader("Authorization", message.Text(authorization))
	}
	req.AppendHeader("User-Agent", message.Text(c.cfg.UserAgent))
	return req
}
