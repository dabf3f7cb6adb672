// Package audio provides the codec and device collaborators the mesh
// hands audio payloads to. The mesh itself never interprets audio bytes;
// everything format-specific lives here.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Payload bounds enforced at the application boundary, before anything
// reaches the mesh or the playback path.
const (
	// MaxEncodedBytes caps an encoded frame. Matches the mesh-side audio
	// payload limit.
	MaxEncodedBytes = 16 * 1024

	// MaxSampleCount caps a decoded sample buffer to bound memory and CPU
	// on hostile or corrupt input.
	MaxSampleCount = 8192
)

// Common codec errors.
var (
	ErrFrameTooLarge   = errors.New("audio: encoded frame exceeds size bound")
	ErrTooManySamples  = errors.New("audio: sample count exceeds bound")
	ErrOddFrameLength  = errors.New("audio: PCM frame length not sample-aligned")
	ErrEmptyFrame      = errors.New("audio: empty frame")
)

// Codec converts between raw PCM samples and wire payload bytes.
type Codec interface {
	// Encode converts samples to a wire payload.
	Encode(samples []int16) ([]byte, error)

	// Decode converts a wire payload back to samples.
	Decode(data []byte) ([]int16, error)

	// Name identifies the codec.
	Name() string
}

// PCM16Codec is a little-endian 16-bit PCM passthrough codec.
type PCM16Codec struct{}

// Name returns "pcm16".
func (PCM16Codec) Name() string { return "pcm16" }

// Encode packs samples as little-endian int16 pairs.
func (PCM16Codec) Encode(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(samples) > MaxSampleCount {
		return nil, fmt.Errorf("%w: %d", ErrTooManySamples, len(samples))
	}

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	if len(out) > MaxEncodedBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(out))
	}
	return out, nil
}

// Decode unpacks little-endian int16 pairs.
func (PCM16Codec) Decode(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(data) > MaxEncodedBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddFrameLength, len(data))
	}

	samples := make([]int16, len(data)/2)
	if len(samples) > MaxSampleCount {
		return nil, fmt.Errorf("%w: %d", ErrTooManySamples, len(samples))
	}
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// MuLawCodec is a G.711 mu-law codec: one byte per sample, halving the
// bandwidth of raw PCM at telephone quality.
type MuLawCodec struct{}

// Name returns "mulaw".
func (MuLawCodec) Name() string { return "mulaw" }

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// Encode compands samples to mu-law bytes.
func (MuLawCodec) Encode(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(samples) > MaxSampleCount {
		return nil, fmt.Errorf("%w: %d", ErrTooManySamples, len(samples))
	}

	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = encodeMuLawSample(s)
	}
	return out, nil
}

// Decode expands mu-law bytes to samples.
func (MuLawCodec) Decode(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(data) > MaxSampleCount {
		return nil, fmt.Errorf("%w: %d", ErrTooManySamples, len(data))
	}

	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = decodeMuLawSample(b)
	}
	return samples, nil
}

func encodeMuLawSample(s int16) byte {
	x := int32(s)
	sign := byte(0)
	if x < 0 {
		x = -x
		sign = 0x80
	}
	if x > muLawClip {
		x = muLawClip
	}
	x += muLawBias

	exponent := 7
	for mask := int32(0x4000); exponent > 0 && x&mask == 0; exponent-- {
		mask >>= 1
	}

	mantissa := byte((x >> uint(exponent+3)) & 0x0F)
	return ^(sign | byte(exponent)<<4 | mantissa)
}

func decodeMuLawSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	x := ((int32(mantissa) << 3) + muLawBias) << exponent
	x -= muLawBias
	if sign != 0 {
		x = -x
	}
	return int16(x)
}
