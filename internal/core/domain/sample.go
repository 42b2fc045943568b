package domain

import "time"

// AudioSample is a submitted recording. It lives only for the duration of a
// request.
type AudioSample struct {
	Data        []byte
	Format      string
	UserID      string
	ChallengeID string
}

// Sample sources recorded in replay history.
const (
	SourceEnroll = "enroll"
	SourceVerify = "verify"
)

// SampleTrace is what the liveness detector remembers about a prior sample:
// enough to recognise a replay, nothing that reconstructs the audio.
type SampleTrace struct {
	Checksum    string    `msgpack:"c"`
	Fingerprint []uint32  `msgpack:"f"`
	SeenAt      time.Time `msgpack:"t"`
	Source      string    `msgpack:"s"`
}
