package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateAttribute(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name     string
		codec    Descriptor
		attr     string
		local    string
		remote   string
		expected string
		fails    bool
	}{
		{"ptime min", PCMU, AttrPtime, "20", "30", "20", false},
		{"ptime min reversed", PCMU, AttrPtime, "40", "20", "20", false},
		{"ptime only remote", PCMA, AttrPtime, "", "30", "30", false},
		{"ptime both empty", PCMA, AttrPtime, "", "", "", false},
		{"ptime garbage", PCMU, AttrPtime, "20", "abc", "", true},
		{"packetization equal", H264M1, AttrPacketizationMode, "1", "1", "1", false},
		{"packetization mismatch", H264M1, AttrPacketizationMode, "1", "0", "", true},
		{"packetization missing remote", H264M0, AttrPacketizationMode, "0", "", "0", false},
		{"packetization missing remote mode1", H264M1, AttrPacketizationMode, "1", "", "", true},
		{"packetization local from codec", H264M1, AttrPacketizationMode, "", "1", "1", false},
		{"profile level min", H264M1, AttrProfileLevelID, "42e01f", "42e00d", "42e00d", false},
		{"profile level upper case", H264M1, AttrProfileLevelID, "42E01F", "42e028", "42e01f", false},
		{"profile mismatch", H264M1, AttrProfileLevelID, "42e01f", "640c1f", "", true},
		{"profile malformed", VP8, AttrProfileLevelID, "42e0", "42e01f", "", true},
		{"flag both set", OPUS, "stereo", "1", "1", "1", false},
		{"flag one side", OPUS, "stereo", "1", "", "0", false},
		{"flag both empty", OPUS, "stereo", "", "", "", false},
		{"fec both empty", OPUS, "useinbandfec", "", "", "", false},
		{"unknown equal", VP8, "max-fr", "30", "30", "30", false},
		{"generic equal", VP8, "foo", "bar", "BAR", "bar", false},
		{"generic differ", VP8, "foo", "bar", "baz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := r.NegotiateAttribute(tt.codec, tt.attr, tt.local, tt.remote)
			if tt.fails {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNegotiationFailed)
				var negErr *NegotiationError
				require.True(t, errors.As(err, &negErr))
				assert.Equal(t, tt.codec, negErr.Codec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestNegotiateFmtp(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("opus", func(t *testing.T) {
		v, err := r.NegotiateAttribute(OPUS, AttrFmtp,
			"111 minptime=10;useinbandfec=1",
			"111 minptime=20;useinbandfec=0;maxplaybackrate=16000")
		require.NoError(t, err)
		assert.Equal(t, "minptime=20;useinbandfec=0;maxplaybackrate=16000", v)
	})

	t.Run("h264 compatible", func(t *testing.T) {
		v, err := r.NegotiateAttribute(H264M1, AttrFmtp,
			"packetization-mode=1;profile-level-id=42e01f",
			"126 profile-level-id=42e015;packetization-mode=1;level-asymmetry-allowed=1")
		require.NoError(t, err)
		assert.Equal(t, "packetization-mode=1;profile-level-id=42e015;level-asymmetry-allowed=0", v)
	})

	t.Run("h264 incompatible mode", func(t *testing.T) {
		_, err := r.NegotiateAttribute(H264M1, AttrFmtp,
			"packetization-mode=1;profile-level-id=42e01f",
			"profile-level-id=42e01f")
		assert.ErrorIs(t, err, ErrNegotiationFailed)
	})

	t.Run("flag absent on both sides", func(t *testing.T) {
		v, err := r.NegotiateAttribute(OPUS, AttrFmtp, "minptime=10", "111 minptime=20")
		require.NoError(t, err)
		assert.Equal(t, "minptime=20", v)
		_, ok := FmtpValue(v, "stereo")
		assert.False(t, ok)
	})

	t.Run("deterministic", func(t *testing.T) {
		local := "minptime=10;useinbandfec=1;stereo=1"
		remote := "stereo=1;useinbandfec=1;maxaveragebitrate=32000"
		first, err := r.NegotiateAttribute(OPUS, AttrFmtp, local, remote)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := r.NegotiateAttribute(OPUS, AttrFmtp, local, remote)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
		assert.Equal(t, "minptime=10;useinbandfec=1;stereo=1;maxaveragebitrate=32000", first)
	})
}

func TestNegotiateSentinel(t *testing.T) {
	r := newTestRegistry(t)

	for _, d := range []Descriptor{AnyAudio, AnyVideo, None} {
		_, err := r.NegotiateAttribute(d, AttrPtime, "20", "20")
		assert.ErrorIs(t, err, ErrNegotiationFailed, d.String())
	}
}

// Кодек без реализации согласуется по общим правилам
func TestNegotiateUnimplemented(t *testing.T) {
	r := newTestRegistry(t)

	v, err := r.NegotiateAttribute(SPEEX, AttrPtime, "20", "40")
	require.NoError(t, err)
	assert.Equal(t, "20", v)
}

func TestFmtpValue(t *testing.T) {
	v, ok := FmtpValue("111 minptime=10;useinbandfec=1", "UseInbandFEC")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = FmtpValue("minptime=10", "stereo")
	assert.False(t, ok)

	_, ok = FmtpValue("", "minptime")
	assert.False(t, ok)
}
