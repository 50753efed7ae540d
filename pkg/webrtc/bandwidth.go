package webrtc

import (
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// Application-level bitrate ceilings, written into the SDP as AS bandwidth
// lines before the description leaves the machine.
const (
	// VideoBandwidthKbps caps video-capable links at roughly 1.6 Mbps.
	VideoBandwidthKbps uint64 = 1600
	// AudioBandwidthKbps caps audio-only links.
	AudioBandwidthKbps uint64 = 100
)

// withBandwidthCap rewrites desc so every audio/video media section carries a
// b=AS line with the given ceiling in kbps. Data-channel sections are left
// alone. A ceiling of zero returns the description unchanged.
func withBandwidthCap(desc webrtc.SessionDescription, kbps uint64) (webrtc.SessionDescription, error) {
	if kbps == 0 {
		return desc, nil
	}

	parsed := sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return desc, fmt.Errorf("failed to parse local description: %w", err)
	}

	for _, media := range parsed.MediaDescriptions {
		if media.MediaName.Media != "audio" && media.MediaName.Media != "video" {
			continue
		}
		media.Bandwidth = []sdp.Bandwidth{{Type: "AS", Bandwidth: kbps}}
	}

	munged, err := parsed.Marshal()
	if err != nil {
		return desc, fmt.Errorf("failed to serialize munged description: %w", err)
	}

	return webrtc.SessionDescription{Type: desc.Type, SDP: string(munged)}, nil
}
