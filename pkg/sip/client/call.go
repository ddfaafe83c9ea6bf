// pkg/sip/client/call.go
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/truesip/sespcl/pkg/log"
	"github.com/truesip/sespcl/pkg/metrics"
	"github.com/truesip/sespcl/pkg/sip/auth"
	"github.com/truesip/sespcl/pkg/sip/message"
	"github.com/truesip/sespcl/pkg/sip/sdp"
	"github.com/truesip/sespcl/pkg/store"

	"go.uber.org/zap"
)

// Payload is the prompt carried in the INVITE's session description:
// either text to speak (with an optional voice) or an audio reference.
type Payload struct {
	Text     string
	Voice    string
	AudioURL string
}

// IsText reports whether the payload is text-to-speak.
func (p Payload) IsText() bool { return p.AudioURL == "" }

func (p Payload) value() string {
	if p.IsText() {
		return p.Text
	}
	return p.AudioURL
}

// CallOptions carries optional transfer instructions. Target and digit
// arrive as a pair; validation is the HTTP caller's job.
type CallOptions struct {
	TransferTo    string
	TransferDigit string
}

// Tracking identifies one signaling attempt for later status lookups.
type Tracking struct {
	CallID    string
	To        string
	From      string
	StartTime time.Time
}

// CallResult is returned when signaling succeeded.
type CallResult struct {
	CallID   string
	Status   string
	Tracking Tracking
}

// CallStatus is a point-in-time view of a tracked call.
type CallStatus struct {
	Status    string
	To        string
	From      string
	StartTime time.Time
	Duration  time.Duration
}

// CallFailedError is a remote rejection of an INVITE.
type CallFailedError struct {
	Status int
	Reason string
}

func (e *CallFailedError) Error() string {
	return fmt.Sprintf("call rejected by trunk: %d %s", e.Status, e.Reason)
}

// PlaceCall signals one outbound call and returns as soon as the trunk
// acknowledges it: a provisional response already counts as success, since
// the caller needs a fast acknowledgement that signaling worked, not that
// the far end answered.
func (c *Client) PlaceCall(ctx context.Context, to, from string, payload Payload, opts CallOptions) (*CallResult, error) {
	if !c.cfg.SkipRegister {
		// Providers accept INVITEs from unregistered peers often enough
		// that a failed registration downgrades to a warning.
		if ok, err := c.Register(ctx); err != nil || !ok {
			c.logger.Warn("Proceeding without registration",
				zap.String("component", log.ComponentCalls),
				zap.Bool("registered", ok),
				zap.Error(err))
		}
	}

	callID := c.newCallID()

	body, err := sdp.Offer{
		Host:     c.localIP,
		TTSText:  payload.Text,
		TTSVoice: payload.Voice,
		AudioURL: payload.AudioURL,
	}.Marshal()
	if err != nil {
		return nil, err
	}

	req := c.inviteRequest(callID, to, from, c.nextCSeq(), body)

	session := &store.CallSession{
		ID:            callID,
		To:            to,
		From:          from,
		Status:        store.StatusCalling,
		StartTime:     time.Now(),
		Payload:       payload.value(),
		PayloadIsText: payload.IsText(),
		Voice:         payload.Voice,
		TransferTo:    opts.TransferTo,
		TransferDigit: opts.TransferDigit,
	}
	if err := c.calls.Insert(session); err != nil {
		return nil, err
	}
	metrics.SetActiveCalls(c.calls.Stats().Active)

	resp, err := c.exchange(ctx, req, c.cfg.SignalingTimeout)
	if err != nil {
		_ = c.calls.Delete(callID)
		metrics.SetActiveCalls(c.calls.Stats().Active)
		metrics.RecordCallOutcome("transport_error")
		return nil, err
	}

	var status string
	switch {
	case resp.Provisional():
		_ = c.calls.UpdateStatus(callID, store.StatusRinging)
		status = store.StatusRinging
	case resp.Success():
		_ = c.calls.UpdateStatus(callID, store.StatusAnswered)
		status = store.StatusAnswered
	default:
		_ = c.calls.Delete(callID)
		metrics.SetActiveCalls(c.calls.Stats().Active)
		metrics.RecordCallOutcome("rejected")
		c.logger.LogCallFailed(callID, resp.StatusCode, resp.Reason)
		return nil, &CallFailedError{Status: resp.StatusCode, Reason: resp.Reason}
	}

	metrics.RecordCallOutcome(status)
	c.logger.LogCallPlaced(callID, to, from, status)

	return &CallResult{
		CallID: callID,
		Status: status,
		Tracking: Tracking{
			CallID:    callID,
			To:        to,
			From:      from,
			StartTime: session.StartTime,
		},
	}, nil
}

func (c *Client) inviteRequest(callID, to, from string, seq uint32, body []byte) *message.Request {
	uri := fmt.Sprintf("sip:%s@%s", to, c.cfg.Domain)
	req := message.NewRequest(message.MethodInvite, uri)

	fromAddr := message.NameAddr{
		Display: c.cfg.DisplayName,
		URI:     fmt.Sprintf("sip:%s@%s", from, c.cfg.Domain),
		Params:  []message.Param{{Name: "tag", Value: newTag()}},
	}
	toAddr := message.NameAddr{URI: uri}

	c.coreHeaders(req, callID, fromAddr, toAddr, seq)
	req.AppendHeader("Contact", message.NameAddr{URI: c.contactURI()})
	req.AppendHeader("Content-Type", message.Text("application/sdp"))

	// A cached challenge lets later calls skip the guaranteed-challenge
	// round trip. The very first INVITE of a process goes out without
	// credentials until a challenge has been observed.
	if challenge, ok := c.cachedChallenge(); ok {
		req.AppendHeader("Authorization", message.Text(
			auth.Authorization(c.cfg.Username, c.cfg.Password, challenge, message.MethodInvite, uri)))
	}

	req.AppendHeader("User-Agent", message.Text(c.cfg.UserAgent))
	req.Body = body
	return req
}

// CallStatus looks up a tracked call. Failed calls are removed immediately,
// so their status resolves to store.ErrNotFound right after failure.
func (c *Client) CallStatus(id string) (*CallStatus, error) {
	session, err := c.calls.Get(id)
	if err != nil {
		return nil, err
	}
	return &CallStatus{
		Status:    session.Status,
		To:        session.To,
		From:      session.From,
		StartTime: session.StartTime,
		Duration:  time.Since(session.StartTime),
	}, nil
}

// Calls returns every tracked session. Entries are never evicted; they
// persist until process restart.
func (c *Client) Calls() []*store.CallSession {
	return c.calls.All()
}
