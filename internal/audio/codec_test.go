package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCM16RoundTrip(t *testing.T) {
	codec := PCM16Codec{}
	assert.Equal(t, "pcm16", codec.Name())

	samples := []int16{0, 1, -1, 12345, -12345, math.MaxInt16, math.MinInt16}

	encoded, err := codec.Encode(samples)
	require.NoError(t, err)
	assert.Len(t, encoded, len(samples)*2)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, samples, decoded, "PCM passthrough is lossless")
}

func TestPCM16Bounds(t *testing.T) {
	codec := PCM16Codec{}

	_, err := codec.Encode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = codec.Encode(make([]int16, MaxSampleCount+1))
	assert.ErrorIs(t, err, ErrTooManySamples)

	_, err = codec.Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = codec.Decode([]byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, ErrOddFrameLength)

	_, err = codec.Decode(make([]byte, MaxEncodedBytes+2))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestMuLawRoundTrip(t *testing.T) {
	codec := MuLawCodec{}
	assert.Equal(t, "mulaw", codec.Name())

	samples := []int16{0, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000}

	encoded, err := codec.Encode(samples)
	require.NoError(t, err)
	assert.Len(t, encoded, len(samples), "one byte per sample")

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(samples))

	// Companding is lossy; the error bound grows with amplitude. Allow
	// half a quantization step at the largest segment.
	for i, want := range samples {
		got := decoded[i]
		diff := int32(got) - int32(want)
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, int32(1024), "sample %d: %d decoded as %d", i, want, got)

		// Sign must always survive.
		if want > 256 {
			assert.Positive(t, got)
		}
		if want < -256 {
			assert.Negative(t, got)
		}
	}
}

func TestMuLawSmallSignalPrecision(t *testing.T) {
	// The whole point of companding: small amplitudes keep fine precision.
	codec := MuLawCodec{}
	for want := int16(-64); want <= 64; want += 8 {
		decoded, err := codec.Decode([]byte{encodeMuLawSample(want)})
		require.NoError(t, err)

		diff := int32(decoded[0]) - int32(want)
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, int32(8), "sample %d decoded as %d", want, decoded[0])
	}
}

func TestMuLawClipping(t *testing.T) {
	// Values beyond the clip threshold encode like the threshold itself.
	max := encodeMuLawSample(math.MaxInt16)
	clip := encodeMuLawSample(muLawClip)
	assert.Equal(t, clip, max)

	min := encodeMuLawSample(math.MinInt16 + 1)
	negClip := encodeMuLawSample(-muLawClip)
	assert.Equal(t, negClip, min)
}

func TestMuLawBounds(t *testing.T) {
	codec := MuLawCodec{}

	_, err := codec.Encode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = codec.Encode(make([]int16, MaxSampleCount+1))
	assert.ErrorIs(t, err, ErrTooManySamples)

	_, err = codec.Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = codec.Decode(make([]byte, MaxSampleCount+1))
	assert.ErrorIs(t, err, ErrTooManySamples)
}
