package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pion/opus"
	"github.com/pion/rtp"
	"github.com/zaf/g711"
)

// DefaultAudioFrame - длительность аудио кадра по умолчанию (ptime 20)
const DefaultAudioFrame = 20 * time.Millisecond

// g711Codec - PCMU/PCMA. Кадр тишины кодируется через zaf/g711.
type g711Codec struct {
	baseCodec
	encodeFrame func(int16) uint8
	decodeFrame func(uint8) int16
	silence     []byte
	decodeReady bool
}

func newPCMU(d Descriptor, attributes []string) Codec {
	return &g711Codec{
		baseCodec:   newBaseCodec(d, DefaultAudioFrame, attributes),
		encodeFrame: g711.EncodeUlawFrame,
		decodeFrame: g711.DecodeUlawFrame,
	}
}

func newPCMA(d Descriptor, attributes []string) Codec {
	return &g711Codec{
		baseCodec:   newBaseCodec(d, DefaultAudioFrame, attributes),
		encodeFrame: g711.EncodeAlawFrame,
		decodeFrame: g711.DecodeAlawFrame,
	}
}

// EncodeInit готовит кадр тишины под текущую длительность кадра
func (c *g711Codec) EncodeInit() error {
	c.silence = bytes.Repeat([]byte{c.encodeFrame(0)}, c.FrameSize())
	return nil
}

// DecodeInit проверяет, что кадр тишины декодируется в тишину
func (c *g711Codec) DecodeInit() error {
	if sample := c.decodeFrame(c.encodeFrame(0)); sample > 8 || sample < -8 {
		return fmt.Errorf("%s: некорректное декодирование тишины: %d", c.descriptor, sample)
	}
	c.decodeReady = true
	return nil
}

// Decode декодирует G.711 payload в S16LE PCM. Требует DecodeInit.
func (c *g711Codec) Decode(payload []byte) ([]byte, error) {
	if !c.decodeReady {
		return nil, fmt.Errorf("%s: декодер не инициализирован", c.descriptor)
	}
	pcm := make([]byte, 2*len(payload))
	for i, b := range payload {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(c.decodeFrame(b)))
	}
	return pcm, nil
}

func (c *g711Codec) SetFrameDuration(d time.Duration) error {
	if err := c.baseCodec.SetFrameDuration(d); err != nil {
		return err
	}
	c.silence = nil
	return nil
}

// BlankPacket возвращает пакет с кадром тишины
func (c *g711Codec) BlankPacket() *rtp.Packet {
	if len(c.silence) != c.FrameSize() {
		_ = c.EncodeInit()
	}
	return c.packet(append([]byte(nil), c.silence...), false)
}

// opusSilence - TOC SILK WB 20ms mono (config 9) + кадр без голосовой активности.
// Декодер pion/opus поддерживает только SILK, поэтому кадр тишины не CELT.
var opusSilence = []byte{0x48, 0x0B, 0xE4, 0xC1, 0x36, 0xEC, 0xC5, 0x80}

// opusPCMSize - размер S16LE буфера pion/opus для 20ms: 320 отсчетов SILK WB x3
const opusPCMSize = 320 * 3 * 2

// opusSilenceThreshold - допустимая амплитуда декодированной тишины
const opusSilenceThreshold = 64

// opusCodec - Opus. Декодер предоставляет pion/opus.
type opusCodec struct {
	baseCodec
	decoder *opus.Decoder
	pcm     []byte
}

func newOpus(d Descriptor, attributes []string) Codec {
	return &opusCodec{baseCodec: newBaseCodec(d, DefaultAudioFrame, attributes)}
}

func (c *opusCodec) EncodeInit() error {
	switch c.frameDuration {
	case 10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond:
		return nil
	default:
		return fmt.Errorf("opus не поддерживает кадр %s", c.frameDuration)
	}
}

// DecodeInit создает декодер и проверяет, что кадр тишины
// декодируется в тишину
func (c *opusCodec) DecodeInit() error {
	decoder := opus.NewDecoder()
	pcm := make([]byte, opusPCMSize)
	if _, _, err := decoder.Decode(opusSilence, pcm); err != nil {
		return fmt.Errorf("%s: декодирование кадра тишины: %w", c.descriptor, err)
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		if sample := int16(binary.LittleEndian.Uint16(pcm[i:])); sample > opusSilenceThreshold || sample < -opusSilenceThreshold {
			return fmt.Errorf("%s: некорректное декодирование тишины: %d", c.descriptor, sample)
		}
	}
	c.decoder = &decoder
	c.pcm = pcm
	return nil
}

// Decode декодирует Opus payload в S16LE PCM. Требует DecodeInit.
func (c *opusCodec) Decode(payload []byte) ([]byte, error) {
	if c.decoder == nil {
		return nil, fmt.Errorf("%s: декодер не инициализирован", c.descriptor)
	}
	if _, _, err := c.decoder.Decode(payload, c.pcm); err != nil {
		return nil, err
	}
	return append([]byte(nil), c.pcm...), nil
}

func (c *opusCodec) BlankPacket() *rtp.Packet {
	return c.packet(append([]byte(nil), opusSilence...), false)
}
