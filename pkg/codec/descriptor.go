package codec

import (
	"fmt"
	"strings"
)

// MediaKind - тип медиа, к которому относится кодек
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ParseMediaKind разбирает тип медиа без учета регистра
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case MediaAudio:
		return MediaAudio, nil
	case MediaVideo:
		return MediaVideo, nil
	default:
		return "", fmt.Errorf("неизвестный тип медиа: %q", s)
	}
}

// Descriptor - неизменяемое описание кодека.
// Значения сравнимы и используются как ключи в таблицах реестра.
type Descriptor struct {
	PayloadType  int    // RTP payload type
	EncodingName string // Имя кодирования из rtpmap
	Description  string // Человекочитаемое описание
	ClockRate    int    // Тактовая частота RTP
	Channels     int    // Количество каналов (0 - не указывается в rtpmap)
}

// Диапазон dynamic payload type (RFC 3551)
const (
	MinDynamicPayloadType = 96
	MaxDynamicPayloadType = 127
)

// Служебные дескрипторы. Отрицательный payload type означает
// "не указан / любой / нет", а не реальный кодек.
var (
	AnyAudio = Descriptor{PayloadType: -1, EncodingName: "ANY_AUDIO", Description: "любой аудио кодек"}
	AnyVideo = Descriptor{PayloadType: -2, EncodingName: "ANY_VIDEO", Description: "любой видео кодек"}
	None     = Descriptor{PayloadType: -3, EncodingName: "NONE", Description: "кодек не выбран"}
)

// Стандартные дескрипторы кодеков
var (
	OPUS   = Descriptor{PayloadType: 111, EncodingName: "opus", Description: "Opus", ClockRate: 48000, Channels: 2}
	PCMU   = Descriptor{PayloadType: 0, EncodingName: "PCMU", Description: "G.711 mu-law", ClockRate: 8000}
	PCMA   = Descriptor{PayloadType: 8, EncodingName: "PCMA", Description: "G.711 A-law", ClockRate: 8000}
	SPEEX  = Descriptor{PayloadType: 110, EncodingName: "speex", Description: "Speex wideband", ClockRate: 16000}
	H264M1 = Descriptor{PayloadType: 126, EncodingName: "H264", Description: "H.264 packetization-mode=1", ClockRate: 90000}
	H264M0 = Descriptor{PayloadType: 97, EncodingName: "H264", Description: "H.264 packetization-mode=0", ClockRate: 90000}
	VP8    = Descriptor{PayloadType: 100, EncodingName: "VP8", Description: "VP8", ClockRate: 90000}
)

// IsSentinel возвращает true для AnyAudio, AnyVideo и None
func (d Descriptor) IsSentinel() bool {
	return d.PayloadType < 0
}

// IsNone проверяет, что дескриптор означает отсутствие кодека
func (d Descriptor) IsNone() bool {
	return d == None
}

// MapString форматирует значение rtpmap:
//
//	"<pt> <name>/<rate>"            - без каналов
//	"<pt> <name>/<rate>/<channels>" - с каналами
//
// Для служебных дескрипторов возвращается пустая строка.
func (d Descriptor) MapString() string {
	if d.IsSentinel() {
		return ""
	}
	if d.Channels == 0 {
		return fmt.Sprintf("%d %s/%d", d.PayloadType, d.EncodingName, d.ClockRate)
	}
	return fmt.Sprintf("%d %s/%d/%d", d.PayloadType, d.EncodingName, d.ClockRate, d.Channels)
}

func (d Descriptor) String() string {
	if d.IsSentinel() {
		return d.EncodingName
	}
	return fmt.Sprintf("%s(%d)", d.EncodingName, d.PayloadType)
}
