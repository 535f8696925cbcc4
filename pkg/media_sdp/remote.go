package media_sdp

import (
	"strconv"
	"strings"

	"github.com/arzzra/media_core/pkg/codec"
	"github.com/pion/sdp/v3"
)

// RTPMap - разобранное значение атрибута rtpmap
type RTPMap struct {
	PayloadType  int
	EncodingName string
	ClockRate    int
	Channels     int
}

// Matches проверяет, что rtpmap описывает тот же кодек, что и дескриптор
func (m RTPMap) Matches(d codec.Descriptor) bool {
	if !strings.EqualFold(m.EncodingName, d.EncodingName) || m.ClockRate != d.ClockRate {
		return false
	}
	// Для моно кодеков канал в rtpmap может быть опущен
	return max(m.Channels, 1) == max(d.Channels, 1)
}

// RemoteMedia - медиа строка удаленной стороны в разобранном виде
type RemoteMedia struct {
	Kind      string
	Port      int
	Protos    []string
	Formats   []int
	RTPMaps   map[int]RTPMap
	Fmtp      map[int]string
	Ptime     string
	Direction Direction
	Address   string
}

// ParseRemoteMedia разбирает медиа описание удаленной стороны.
// Нечисловые форматы пропускаются, порядок форматов сохраняется.
func ParseRemoteMedia(md *sdp.MediaDescription) (*RemoteMedia, error) {
	if md == nil {
		return nil, newSDPError(ErrorCodeSDPParsing, "", nil, "медиа описание не может быть nil")
	}

	remote := &RemoteMedia{
		Kind:      md.MediaName.Media,
		Port:      md.MediaName.Port.Value,
		Protos:    append([]string(nil), md.MediaName.Protos...),
		Formats:   codec.ParsePrecedence(md.MediaName.Formats),
		RTPMaps:   make(map[int]RTPMap),
		Fmtp:      make(map[int]string),
		Direction: directionFromAttributes(md.Attributes),
	}
	if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
		remote.Address = md.ConnectionInformation.Address.Address
	}

	for _, attr := range md.Attributes {
		switch attr.Key {
		case "rtpmap":
			if m, ok := parseRTPMap(attr.Value); ok {
				remote.RTPMaps[m.PayloadType] = m
			}
		case "fmtp":
			pt, params, ok := splitPayloadValue(attr.Value)
			if ok {
				remote.Fmtp[pt] = params
			}
		case "ptime":
			remote.Ptime = strings.TrimSpace(attr.Value)
		}
	}
	return remote, nil
}

// Rejected сообщает, что удаленная сторона отклонила медиа строку
func (r *RemoteMedia) Rejected() bool {
	return r.Port == 0
}

// parseRTPMap разбирает "<pt> <name>/<rate>[/<channels>]"
func parseRTPMap(value string) (RTPMap, bool) {
	pt, rest, ok := splitPayloadValue(value)
	if !ok {
		return RTPMap{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 {
		return RTPMap{}, false
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil {
		return RTPMap{}, false
	}
	m := RTPMap{PayloadType: pt, EncodingName: parts[0], ClockRate: rate}
	if len(parts) >= 3 {
		if channels, err := strconv.Atoi(parts[2]); err == nil {
			m.Channels = channels
		}
	}
	return m, true
}

// splitPayloadValue делит "<pt> <value>" на payload type и остаток
func splitPayloadValue(value string) (int, string, bool) {
	head, rest, _ := strings.Cut(strings.TrimSpace(value), " ")
	pt, err := strconv.Atoi(head)
	if err != nil || pt < 0 {
		return 0, "", false
	}
	return pt, strings.TrimSpace(rest), true
}
