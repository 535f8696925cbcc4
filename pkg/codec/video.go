package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pion/rtp"
)

// DefaultVideoFrame - длительность видео кадра при 30 fps
const DefaultVideoFrame = time.Second / 30

// h264Codec - H.264 с фиксированным режимом пакетизации
type h264Codec struct {
	baseCodec
}

func h264Factory(mode int) Factory {
	return func(d Descriptor, attributes []string) Codec {
		c := &h264Codec{baseCodec: newBaseCodec(d, DefaultVideoFrame, attributes)}
		c.packetization = mode
		return c
	}
}

func (c *h264Codec) EncodeInit() error { return nil }
func (c *h264Codec) DecodeInit() error { return nil }

// SetPacketization поддерживает режимы 0 (single NAL) и 1 (non-interleaved)
func (c *h264Codec) SetPacketization(mode int) error {
	if mode != 0 && mode != 1 {
		return fmt.Errorf("H.264: неподдерживаемый packetization-mode %d", mode)
	}
	c.packetization = mode
	return nil
}

// NegotiateAttribute подставляет собственный режим пакетизации, если
// локальное значение не задано.
func (c *h264Codec) NegotiateAttribute(name, local, remote string) (string, error) {
	if strings.EqualFold(name, AttrPacketizationMode) && strings.TrimSpace(local) == "" {
		local = strconv.Itoa(c.packetization)
	}
	return negotiateAttribute(c.descriptor, name, local, remote)
}

// BlankPacket - пустой пакет с маркером конца кадра
func (c *h264Codec) BlankPacket() *rtp.Packet {
	return c.packet(nil, true)
}

type vp8Codec struct {
	baseCodec
}

func newVP8(d Descriptor, attributes []string) Codec {
	return &vp8Codec{baseCodec: newBaseCodec(d, DefaultVideoFrame, attributes)}
}

func (c *vp8Codec) EncodeInit() error { return nil }
func (c *vp8Codec) DecodeInit() error { return nil }

// BlankPacket - VP8 payload descriptor с битом S и маркером конца кадра
func (c *vp8Codec) BlankPacket() *rtp.Packet {
	return c.packet([]byte{0x10}, true)
}
