package client

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/truesip/sespcl/pkg/common"
	"github.com/truesip/sespcl/pkg/log"
	"github.com/truesip/sespcl/pkg/sip/auth"
	"github.com/truesip/sespcl/pkg/sip/transport"
	"github.com/truesip/sespcl/pkg/store"
)

const digestChallenge = `WWW-Authenticate: Digest realm="sip.test", nonce="n1"`

func newTestClient(t *testing.T, srv *trunkServer, mut func(*Config)) *Client {
	t.Helper()
	host, port := srv.hostPort()
	cfg := Config{
		ProxyHost:        host,
		ProxyPort:        port,
		LocalPort:        5062,
		Username:         "bob",
		Password:         "pw",
		Domain:           "sip.test",
		DisplayName:      "Dialer",
		SkipRegister:     true,
		SignalingTimeout: 2 * time.Second,
		ProbeTimeout:     300 * time.Millisecond,
	}
	if mut != nil {
		mut(&cfg)
	}
	return New(cfg, nil, nil, &log.Logger{Logger: zaptest.NewLogger(t)})
}

func TestRegisterAnswersChallenge(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(
		sipResponse(401, "Unauthorized", digestChallenge),
		sipResponse(200, "OK"),
	)
	c := newTestClient(t, srv, nil)

	ok, err := c.Register(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.Equal(t, 2, srv.requestCount())

	first, second := srv.request(0), srv.request(1)
	assert.Contains(t, first, "REGISTER sip:sip.test SIP/2.0")
	assert.NotContains(t, first, "Authorization:")
	assert.Contains(t, first, "CSeq: 1 REGISTER")

	// Retry keeps the dialog identity and bumps CSeq; the digest response is
	// pinned to the bob/sip.test/pw/n1 vector.
	assert.Contains(t, second, "CSeq: 2 REGISTER")
	assert.Contains(t, second,
		`Authorization: Digest username="bob", realm="sip.test", nonce="n1", uri="sip:sip.test", response="130f7ca74b301dc98ee38900647ca6e7"`)

	callID := func(req string) string {
		for _, line := range strings.Split(req, "\r\n") {
			if after, ok := strings.CutPrefix(line, "Call-ID: "); ok {
				return after
			}
		}
		return ""
	}
	require.NotEmpty(t, callID(first))
	assert.Equal(t, callID(first), callID(second))
}

func TestRegisterIsIdempotent(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(200, "OK"))
	c := newTestClient(t, srv, nil)

	ok, err := c.Register(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// Registered state short-circuits; no further traffic.
	ok, err = c.Register(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, srv.requestCount())
}

func TestRegisterRejectedAfterRetry(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(
		sipResponse(401, "Unauthorized", digestChallenge),
		sipResponse(403, "Forbidden"),
	)
	c := newTestClient(t, srv, nil)

	ok, err := c.Register(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, srv.requestCount())

	// Rejection does not latch: a later attempt goes back to the wire.
	srv.enqueue(sipResponse(200, "OK"))
	ok, err = c.Register(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, srv.requestCount())
}

func TestRegisterMalformedChallenge(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(401, "Unauthorized"))
	c := newTestClient(t, srv, nil)

	ok, err := c.Register(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, auth.ErrChallengeMalformed)
}

func TestPlaceCallRinging(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(180, "Ringing"))
	c := newTestClient(t, srv, nil)

	result, err := c.PlaceCall(context.Background(), "alice", "bob",
		Payload{Text: "hello there", Voice: "emma"}, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, store.StatusRinging, result.Status)
	assert.NotEmpty(t, result.CallID)

	invite := srv.request(0)
	assert.Contains(t, invite, "INVITE sip:alice@sip.test SIP/2.0")
	assert.Contains(t, invite, "Content-Type: application/sdp")
	assert.Contains(t, invite, "a=tts-text:hello there")
	assert.Contains(t, invite, "a=tts-voice:emma")

	status, err := c.CallStatus(result.CallID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRinging, status.Status)
	assert.Equal(t, "alice", status.To)
}

func TestPlaceCallAnswered(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(200, "OK"))
	c := newTestClient(t, srv, nil)

	result, err := c.PlaceCall(context.Background(), "alice", "bob",
		Payload{AudioURL: "https://cdn.example.com/prompt.wav"}, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, store.StatusAnswered, result.Status)

	invite := srv.request(0)
	assert.Contains(t, invite, "a=audio-url:https://cdn.example.com/prompt.wav")
	assert.NotContains(t, invite, "a=tts-text:")
}

func TestPlaceCallRejectedRemovesSession(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(486, "Busy Here"))
	c := newTestClient(t, srv, nil)

	_, err := c.PlaceCall(context.Background(), "alice", "bob",
		Payload{Text: "hi"}, CallOptions{})

	var callErr *CallFailedError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, 486, callErr.Status)
	assert.Equal(t, "Busy Here", callErr.Reason)
	assert.Empty(t, c.Calls())
}

func TestPlaceCallTimeoutRemovesSession(t *testing.T) {
	srv := newTrunkServer(t)
	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.SignalingTimeout = 200 * time.Millisecond
	})

	_, err := c.PlaceCall(context.Background(), "alice", "bob",
		Payload{Text: "hi"}, CallOptions{})

	var timeoutErr *transport.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Empty(t, c.Calls())
}

func TestConcurrentCallsGetDistinctSessions(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(200, "OK"), sipResponse(200, "OK"))
	c := newTestClient(t, srv, nil)

	var wg sync.WaitGroup
	results := make([]*CallResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.PlaceCall(context.Background(), "alice", "bob",
				Payload{Text: "hi"}, CallOptions{})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0].CallID, results[1].CallID)
	assert.Len(t, c.Calls(), 2)
}

func TestInviteReusesCachedCredentials(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(
		sipResponse(401, "Unauthorized", digestChallenge),
		sipResponse(200, "OK"), // REGISTER retry
		sipResponse(200, "OK"), // INVITE
	)
	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.SkipRegister = false
	})

	_, err := c.PlaceCall(context.Background(), "alice", "bob",
		Payload{Text: "hi"}, CallOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, srv.requestCount())

	// The challenge observed during registration is answered proactively.
	invite := srv.request(2)
	assert.Contains(t, invite, "INVITE sip:alice@sip.test SIP/2.0")
	assert.Contains(t, invite,
		`Authorization: Digest username="bob", realm="sip.test", nonce="n1", uri="sip:alice@sip.test"`)
}

func TestCircuitBreakerFailsFast(t *testing.T) {
	srv := newTrunkServer(t)
	host, port := srv.hostPort()
	breaker := common.NewCircuitBreaker("trunk", common.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
	}, zaptest.NewLogger(t))
	c := New(Config{
		ProxyHost:        host,
		ProxyPort:        port,
		Username:         "bob",
		Password:         "pw",
		Domain:           "sip.test",
		SkipRegister:     true,
		SignalingTimeout: 200 * time.Millisecond,
	}, nil, breaker, &log.Logger{Logger: zaptest.NewLogger(t)})

	_, err := c.PlaceCall(context.Background(), "alice", "bob",
		Payload{Text: "hi"}, CallOptions{})
	var timeoutErr *transport.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, common.StateOpen, breaker.GetState())

	_, err = c.PlaceCall(context.Background(), "alice", "bob",
		Payload{Text: "hi"}, CallOptions{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, srv.requestCount())
	assert.Empty(t, c.Calls())
}

func TestConnectivityReachable(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(200, "OK"))
	c := newTestClient(t, srv, nil)

	result := c.TestConnectivity(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, ConnOK, result.Classification)
	assert.Contains(t, srv.request(0), "OPTIONS sip:sip.test SIP/2.0")
}

func TestConnectivityNotFoundStillReachable(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(404, "Not Found"))
	c := newTestClient(t, srv, nil)

	result := c.TestConnectivity(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, ConnOK, result.Classification)
}

func TestConnectivityTimeout(t *testing.T) {
	srv := newTrunkServer(t)
	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.ProbeTimeout = 200 * time.Millisecond
	})

	result := c.TestConnectivity(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, ConnTimeout, result.Classification)
	assert.NotEmpty(t, result.Troubleshooting)
}

func TestConnectivityUnexpectedStatus(t *testing.T) {
	srv := newTrunkServer(t)
	srv.enqueue(sipResponse(503, "Service Unavailable"))
	c := newTestClient(t, srv, nil)

	result := c.TestConnectivity(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, ConnUnexpectedStatus, result.Classification)
}

