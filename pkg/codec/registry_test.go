package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/opus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(DefaultConfig())
	require.NoError(t, err)
	return r
}

func TestCodecsFor(t *testing.T) {
	r := newTestRegistry(t)

	assert.Equal(t, []Descriptor{OPUS, PCMU, PCMA, SPEEX}, r.CodecsFor(MediaAudio))
	assert.Equal(t, []Descriptor{H264M1, H264M0, VP8}, r.CodecsFor(MediaVideo))
	assert.Empty(t, r.CodecsFor(MediaKind("application")))

	// Изменение копии не влияет на реестр
	list := r.CodecsFor(MediaAudio)
	list[0] = None
	assert.Equal(t, OPUS, r.CodecsFor(MediaAudio)[0])
}

func TestMapString(t *testing.T) {
	tests := []struct {
		d        Descriptor
		expected string
	}{
		{OPUS, "111 opus/48000/2"},
		{PCMU, "0 PCMU/8000"},
		{PCMA, "8 PCMA/8000"},
		{H264M0, "97 H264/90000"},
		{AnyAudio, ""},
		{AnyVideo, ""},
		{None, ""},
	}
	for _, tt := range tests {
		t.Run(tt.d.EncodingName, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.d.MapString())
		})
	}
}

func TestResolveByName(t *testing.T) {
	r := newTestRegistry(t)

	assert.Equal(t, H264M0, r.ResolveByName("H264M0"))
	assert.Equal(t, 97, r.ResolveByName("H264M0").PayloadType)
	assert.Equal(t, H264M1, r.ResolveByName("h264m1"))
	assert.Equal(t, 126, r.ResolveByName("H264M1").PayloadType)

	assert.Equal(t, OPUS, r.ResolveByName("OPUS"))
	assert.Equal(t, PCMU, r.ResolveByName("pcmu"))
	assert.Equal(t, VP8, r.ResolveByName("VP8"))
	// Голое имя выбирает первый по предпочтению дескриптор
	assert.Equal(t, H264M1, r.ResolveByName("H264"))

	assert.Equal(t, None, r.ResolveByName("bogus"))
	assert.Equal(t, None, r.ResolveByName(""))
	assert.True(t, r.ResolveByName("bogus").IsNone())
}

func TestWithPrecedence(t *testing.T) {
	r := newTestRegistry(t)

	assert.Equal(t, []Descriptor{OPUS, PCMU}, r.WithPrecedence(MediaAudio, []int{111, 0}))
	assert.Equal(t, []Descriptor{PCMA, OPUS}, r.WithPrecedence(MediaAudio, []int{8, 96, 111, 8}))
	assert.Equal(t, []Descriptor{H264M0, VP8}, r.WithPrecedence(MediaVideo, []int{97, 0, 100}))
	assert.Empty(t, r.WithPrecedence(MediaVideo, []int{0, 8}))
	assert.Empty(t, r.WithPrecedence(MediaAudio, nil))
}

func TestAttributesFor(t *testing.T) {
	r, err := NewRegistry(Config{H264ProfileLevelID: "42001f"})
	require.NoError(t, err)

	attrs := r.AttributesFor(H264M1)
	require.NotEmpty(t, attrs)
	assert.Equal(t, "fmtp:126 packetization-mode=1;profile-level-id=42001f", attrs[0])
	assert.Contains(t, attrs, "rtcp-fb:126 nack pli")

	assert.Equal(t, "fmtp:97 packetization-mode=0;profile-level-id=42001f", r.AttributesFor(H264M0)[0])
	assert.Equal(t, []string{"fmtp:111 minptime=10;useinbandfec=1"}, r.AttributesFor(OPUS))
	assert.Empty(t, r.AttributesFor(PCMU))
	assert.Nil(t, r.AttributesFor(None))
}

func TestInstantiate(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	r, err := NewRegistry(DefaultConfig(), WithLogger(logger))
	require.NoError(t, err)

	t.Run("supported codecs", func(t *testing.T) {
		for _, d := range []Descriptor{OPUS, PCMU, PCMA, H264M0, H264M1, VP8} {
			c := r.Instantiate(d)
			require.NotNil(t, c, d.String())
			assert.Equal(t, d.PayloadType, c.ID())
			assert.Equal(t, d.EncodingName, c.Name())
			assert.Equal(t, d.ClockRate, c.SampleRate())
			assert.Equal(t, d, c.Descriptor())
			assert.NoError(t, c.EncodeInit())
			assert.NoError(t, c.DecodeInit())
			assert.ElementsMatch(t, r.AttributesFor(d), c.MediaAttributes())

			pkt := c.BlankPacket()
			require.NotNil(t, pkt)
			assert.Equal(t, uint8(d.PayloadType), pkt.PayloadType)
			assert.Equal(t, uint8(2), pkt.Version)
		}
	})

	t.Run("unsupported codec returns nil", func(t *testing.T) {
		assert.Nil(t, r.Instantiate(SPEEX))
		assert.Contains(t, logs.String(), "реализация кодека недоступна")

		_, err := r.InstantiateE(SPEEX)
		assert.ErrorIs(t, err, ErrCodecUnsupported)
		_, err = r.InstantiateE(None)
		assert.ErrorIs(t, err, ErrCodecUnsupported)
	})

	assert.Equal(t, []Descriptor{OPUS, PCMU, PCMA}, r.Supported(MediaAudio))
}

func TestCodecFrames(t *testing.T) {
	r := newTestRegistry(t)

	pcmu := r.Instantiate(PCMU)
	require.NotNil(t, pcmu)
	assert.Equal(t, 160, pcmu.FrameSize())
	assert.Equal(t, 20*time.Millisecond, pcmu.FrameDuration())
	pkt := pcmu.BlankPacket()
	assert.Len(t, pkt.Payload, 160)
	assert.Equal(t, byte(0xFF), pkt.Payload[0])

	require.NoError(t, pcmu.SetFrameDuration(30*time.Millisecond))
	assert.Equal(t, 240, pcmu.FrameSize())
	assert.Len(t, pcmu.BlankPacket().Payload, 240)
	assert.Error(t, pcmu.SetFrameDuration(0))

	pcma := r.Instantiate(PCMA)
	require.NotNil(t, pcma)
	assert.Equal(t, byte(0xD5), pcma.BlankPacket().Payload[0])

	opus := r.Instantiate(OPUS)
	require.NotNil(t, opus)
	assert.Equal(t, 960, opus.FrameSize())
	require.NoError(t, opus.SetFrameDuration(25*time.Millisecond))
	assert.Error(t, opus.EncodeInit())

	h264 := r.Instantiate(H264M0)
	require.NotNil(t, h264)
	assert.Equal(t, 0, h264.Packetization())
	assert.Equal(t, 1, r.Instantiate(H264M1).Packetization())
	require.NoError(t, h264.SetPacketization(1))
	assert.Equal(t, 1, h264.Packetization())
	assert.Error(t, h264.SetPacketization(2))
	assert.True(t, h264.BlankPacket().Marker)

	assert.Error(t, pcmu.SetPacketization(1))
}

func TestBlankPacketDecodes(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("opus", func(t *testing.T) {
		c := r.Instantiate(OPUS)
		require.NotNil(t, c)
		dec, ok := c.(PayloadDecoder)
		require.True(t, ok)

		_, err := dec.Decode(c.BlankPacket().Payload)
		assert.Error(t, err, "декодер до DecodeInit")

		require.NoError(t, c.DecodeInit())
		pcm, err := dec.Decode(c.BlankPacket().Payload)
		require.NoError(t, err)
		assert.Len(t, pcm, 1920)

		// Тот же payload независимым декодером pion/opus
		fresh := opus.NewDecoder()
		out := make([]byte, 1920)
		bandwidth, stereo, err := fresh.Decode(c.BlankPacket().Payload, out)
		require.NoError(t, err)
		assert.Equal(t, opus.BandwidthWideband, bandwidth)
		assert.False(t, stereo)
		for i := 0; i < len(out); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(out[i:]))
			require.LessOrEqual(t, sample, int16(opusSilenceThreshold))
			require.GreaterOrEqual(t, sample, int16(-opusSilenceThreshold))
		}

		_, err = dec.Decode([]byte{0xF8, 0xFF, 0xFE})
		assert.Error(t, err, "CELT кадр не поддерживается")
	})

	t.Run("g711", func(t *testing.T) {
		for _, d := range []Descriptor{PCMU, PCMA} {
			c := r.Instantiate(d)
			require.NotNil(t, c)
			dec := c.(PayloadDecoder)
			require.NoError(t, c.DecodeInit())

			pcm, err := dec.Decode(c.BlankPacket().Payload)
			require.NoError(t, err)
			require.Len(t, pcm, 2*c.FrameSize())
			for i := 0; i < len(pcm); i += 2 {
				sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
				assert.InDelta(t, 0, sample, 8, d.String())
			}
		}
	})
}

func TestPrepare(t *testing.T) {
	r := newTestRegistry(t)

	for _, d := range []Descriptor{OPUS, PCMU, PCMA, H264M0, H264M1, VP8} {
		assert.NoError(t, Prepare(r.Instantiate(d)), d.String())
	}

	c := r.Instantiate(OPUS)
	require.NoError(t, c.SetFrameDuration(30*time.Millisecond))
	assert.Error(t, Prepare(c))
}

func TestSetPayloadType(t *testing.T) {
	r := newTestRegistry(t)

	c := r.Instantiate(H264M1)
	require.NoError(t, c.SetPayloadType(97))
	assert.Equal(t, 97, c.ID())
	assert.Equal(t, uint8(97), c.BlankPacket().PayloadType)
	assert.Equal(t, H264M1, c.Descriptor())

	assert.Error(t, c.SetPayloadType(8))
	assert.Error(t, c.SetPayloadType(128))
	assert.Equal(t, 97, c.ID())

	pcmu := r.Instantiate(PCMU)
	require.NoError(t, pcmu.SetPayloadType(0))
	require.NoError(t, pcmu.SetPayloadType(MinDynamicPayloadType))
	assert.Equal(t, MinDynamicPayloadType, pcmu.ID())
}

func TestRegister(t *testing.T) {
	r := newTestRegistry(t)

	g722 := Descriptor{PayloadType: 9, EncodingName: "G722", Description: "G.722", ClockRate: 8000}
	require.NoError(t, r.Register(MediaAudio, g722, []string{"ptime:{pt}"}, newPCMU))
	assert.Equal(t, g722, r.CodecsFor(MediaAudio)[4])
	assert.Equal(t, []string{"ptime:9"}, r.AttributesFor(g722))
	kind, ok := r.KindOf(g722)
	assert.True(t, ok)
	assert.Equal(t, MediaAudio, kind)

	dup := Descriptor{PayloadType: 9, EncodingName: "X", ClockRate: 8000}
	assert.ErrorIs(t, r.Register(MediaAudio, dup, nil, nil), ErrDuplicatePayloadType)
	// Тот же payload type допустим в другом типе медиа
	assert.NoError(t, r.Register(MediaVideo, dup, nil, nil))

	assert.Error(t, r.Register(MediaAudio, None, nil, nil))
	assert.Error(t, r.Register(MediaKind("text"), Descriptor{PayloadType: 50, EncodingName: "T", ClockRate: 1000}, nil, nil))
	assert.Error(t, r.RegisterQualifiedName("G722X", Descriptor{PayloadType: 77, EncodingName: "nope", ClockRate: 1}))

	require.NoError(t, r.RegisterQualifiedName("g722-wide", g722))
	assert.Equal(t, g722, r.ResolveByName("G722-WIDE"))
}

func TestRegistryConfig(t *testing.T) {
	_, err := NewRegistry(Config{H264ProfileLevelID: "xyz"})
	assert.Error(t, err)

	r, err := NewRegistry(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultH264ProfileLevelID, r.Config().H264ProfileLevelID)

	empty, err := NewRegistry(DefaultConfig(), WithoutDefaults())
	require.NoError(t, err)
	assert.Empty(t, empty.CodecsFor(MediaAudio))
	assert.Equal(t, None, empty.ResolveByName("H264M0"))
}

// TestConcurrentReadsDuringRegister - читатели не блокируются и видят
// согласованный снимок во время административной регистрации.
func TestConcurrentReadsDuringRegister(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				list := r.CodecsFor(MediaAudio)
				assert.GreaterOrEqual(t, len(list), 4)
				assert.Equal(t, OPUS, list[0])
				assert.Equal(t, H264M0, r.ResolveByName("H264M0"))
				_ = r.AttributesFor(H264M1)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for pt := 60; pt < 90; pt++ {
			d := Descriptor{PayloadType: pt, EncodingName: fmt.Sprintf("X%d", pt), ClockRate: 8000}
			assert.NoError(t, r.Register(MediaAudio, d, nil, nil))
		}
	}()
	wg.Wait()

	assert.Len(t, r.CodecsFor(MediaAudio), 34)
}

func TestParsePrecedence(t *testing.T) {
	assert.Equal(t, []int{111, 0, 8}, ParsePrecedence([]string{"111", "0", "webrtc-datachannel", "8"}))
	assert.Empty(t, ParsePrecedence(nil))
}

func TestParseMediaKind(t *testing.T) {
	kind, err := ParseMediaKind("Audio")
	require.NoError(t, err)
	assert.Equal(t, MediaAudio, kind)

	_, err = ParseMediaKind("text")
	assert.Error(t, err)
}
