package codec

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pion/rtp"
)

// Codec - единый интерфейс возможностей кодека.
// Экземпляр создается Registry.Instantiate на каждый запрос и не разделяется
// между сессиями.
type Codec interface {
	// Подготовка кодирования/декодирования
	EncodeInit() error
	DecodeInit() error

	// NegotiateAttribute согласует значение атрибута для этого кодека
	NegotiateAttribute(name, local, remote string) (string, error)

	// BlankPacket возвращает RTP пакет "тишины"/пустого кадра
	BlankPacket() *rtp.Packet

	// Размер кадра
	FrameSize() int
	FrameDuration() time.Duration
	SetFrameDuration(d time.Duration) error

	SampleRate() int
	Name() string
	ID() int
	Descriptor() Descriptor

	// SetPayloadType задает payload type на линии, если удаленная
	// сторона назначила кодеку другой dynamic номер. ID возвращает его же.
	SetPayloadType(pt int) error

	// Режим пакетизации (для H.264 - packetization-mode)
	Packetization() int
	SetPacketization(mode int) error

	// MediaAttributes - строки атрибутов SDP для этого кодека
	MediaAttributes() []string
}

// PayloadDecoder реализуют аудио кодеки, умеющие декодировать payload
// в S16LE PCM. Вызывается после DecodeInit.
type PayloadDecoder interface {
	Decode(payload []byte) ([]byte, error)
}

// Prepare выполняет EncodeInit и DecodeInit и, если кодек умеет
// декодировать, проверяет декодирование собственного пакета тишины.
func Prepare(c Codec) error {
	if err := c.EncodeInit(); err != nil {
		return err
	}
	if err := c.DecodeInit(); err != nil {
		return err
	}
	if dec, ok := c.(PayloadDecoder); ok {
		if _, err := dec.Decode(c.BlankPacket().Payload); err != nil {
			return fmt.Errorf("%s: пакет тишины не декодируется: %w", c.Descriptor(), err)
		}
	}
	return nil
}

// Factory создает реализацию кодека для дескриптора
type Factory func(d Descriptor, attributes []string) Codec

// baseCodec содержит общую часть реализаций
type baseCodec struct {
	descriptor    Descriptor
	payloadType   int
	frameDuration time.Duration
	packetization int
	attributes    []string
}

func newBaseCodec(d Descriptor, frame time.Duration, attributes []string) baseCodec {
	return baseCodec{
		descriptor:    d,
		payloadType:   d.PayloadType,
		frameDuration: frame,
		attributes:    append([]string(nil), attributes...),
	}
}

func (c *baseCodec) NegotiateAttribute(name, local, remote string) (string, error) {
	return negotiateAttribute(c.descriptor, name, local, remote)
}

// FrameSize возвращает количество отсчетов в одном кадре
func (c *baseCodec) FrameSize() int {
	return int(int64(c.descriptor.ClockRate) * int64(c.frameDuration) / int64(time.Second))
}

func (c *baseCodec) FrameDuration() time.Duration { return c.frameDuration }

func (c *baseCodec) SetFrameDuration(d time.Duration) error {
	if d <= 0 || d > 120*time.Millisecond {
		return fmt.Errorf("недопустимая длительность кадра %s для %s", d, c.descriptor)
	}
	c.frameDuration = d
	return nil
}

func (c *baseCodec) SampleRate() int { return c.descriptor.ClockRate }
func (c *baseCodec) Name() string { return c.descriptor.EncodingName }
func (c *baseCodec) ID() int { return c.payloadType }
func (c *baseCodec) Descriptor() Descriptor { return c.descriptor }
func (c *baseCodec) Packetization() int { return c.packetization }
func (c *baseCodec) MediaAttributes() []string { return append([]string(nil), c.attributes...) }

func (c *baseCodec) SetPacketization(mode int) error {
	if mode != 0 {
		return fmt.Errorf("кодек %s поддерживает только packetization 0", c.descriptor)
	}
	c.packetization = mode
	return nil
}

func (c *baseCodec) SetPayloadType(pt int) error {
	if pt != c.descriptor.PayloadType && (pt < MinDynamicPayloadType || pt > MaxDynamicPayloadType) {
		return fmt.Errorf("payload type %d для %s вне диапазона dynamic %d-%d",
			pt, c.descriptor, MinDynamicPayloadType, MaxDynamicPayloadType)
	}
	c.payloadType = pt
	return nil
}

// packet собирает RTP пакет с заданной нагрузкой
func (c *baseCodec) packet(payload []byte, marker bool) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    uint8(c.payloadType),
			SequenceNumber: uint16(rand.UintN(1 << 16)),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
		Payload: payload,
	}
}

// fmtpFromAttributes возвращает параметры первой строки fmtp из атрибутов
func fmtpFromAttributes(attributes []string) string {
	for _, attr := range attributes {
		key, value, ok := strings.Cut(attr, ":")
		if ok && strings.EqualFold(key, AttrFmtp) {
			return formatFmtp(parseFmtp(value))
		}
	}
	return ""
}
