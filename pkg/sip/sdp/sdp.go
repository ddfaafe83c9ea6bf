// pkg/sip/sdp/sdp.go
package sdp

import (
	"fmt"
	"time"

	"github.com/pion/sdp/v3"
)

// Port advertised in the media line. No RTP is ever established; the offer
// is signaling metadata interpreted out-of-band by the trunk.
const advertisedPort = 8000

// Offer describes the audio session advertised in an INVITE. Exactly one of
// TTSText or AudioURL should be set; the prompt payload travels as custom
// a= attributes on the audio media.
type Offer struct {
	Host     string
	TTSText  string
	TTSVoice string
	AudioURL string
}

// Marshal renders the offer as a minimal PCMU/PCMA session description.
func (o Offer) Marshal() ([]byte, error) {
	if o.Host == "" {
		return nil, fmt.Errorf("sdp offer: host is required")
	}

	now := uint64(time.Now().Unix())

	media := (&sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  "audio",
			Port:   sdp.RangedPort{Value: advertisedPort},
			Protos: []string{"RTP", "AVP"},
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: o.Host},
		},
	}).
		WithCodec(0, "PCMU", 8000, 1, "").
		WithCodec(8, "PCMA", 8000, 1, "").
		WithPropertyAttribute(sdp.AttrKeySendRecv)

	if o.AudioURL != "" {
		media = media.WithValueAttribute("audio-url", o.AudioURL)
	} else {
		media = media.WithValueAttribute("tts-text", o.TTSText)
		if o.TTSVoice != "" {
			media = media.WithValueAttribute("tts-voice", o.TTSVoice)
		}
	}

	desc := sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: o.Host,
		},
		SessionName: "call",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: o.Host},
		},
		TimeDescriptions: []sdp.TimeDescription{{
			Timing: sdp.Timing{StartTime: 0, StopTime: 0},
		}},
		MediaDescriptions: []*sdp.MediaDescription{media},
	}

	return desc.Marshal()
}
