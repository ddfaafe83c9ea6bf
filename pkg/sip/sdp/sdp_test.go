package sdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalTTSOffer(t *testing.T) {
	raw, err := Offer{Host: "10.0.0.1", TTSText: "hello there", TTSVoice: "alice"}.Marshal()
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, "v=0")
	assert.Contains(t, body, "c=IN IP4 10.0.0.1")
	assert.Contains(t, body, "m=audio 8000 RTP/AVP 0 8")
	assert.Contains(t, body, "a=rtpmap:0 PCMU/8000")
	assert.Contains(t, body, "a=rtpmap:8 PCMA/8000")
	assert.Contains(t, body, "a=tts-text:hello there")
	assert.Contains(t, body, "a=tts-voice:alice")
	assert.NotContains(t, body, "a=audio-url")
}

func TestMarshalAudioReferenceOffer(t *testing.T) {
	raw, err := Offer{Host: "10.0.0.1", AudioURL: "https://cdn.example.com/prompt.wav"}.Marshal()
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, "a=audio-url:https://cdn.example.com/prompt.wav")
	assert.NotContains(t, body, "a=tts-text")
}

func TestMarshalWithoutVoiceOmitsAttribute(t *testing.T) {
	raw, err := Offer{Host: "10.0.0.1", TTSText: "hi"}.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "a=tts-voice")
}

func TestMarshalRequiresHost(t *testing.T) {
	_, err := Offer{TTSText: "hi"}.Marshal()
	assert.Error(t, err)
}
