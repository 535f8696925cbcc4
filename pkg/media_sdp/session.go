package media_sdp

import (
	"fmt"
	"time"

	"github.com/pion/sdp/v3"
)

// SessionParams - параметры SDP на уровне сессии
type SessionParams struct {
	SessionName string
	Address     string // Локальный IP для o= и c=
	Version     uint64 // 0 - текущее время
}

// NewSessionDescription собирает SDP из медиа описаний.
// Строка c= уровня сессии указывается, если задан Address.
func NewSessionDescription(params SessionParams, media ...*sdp.MediaDescription) (*sdp.SessionDescription, error) {
	if len(media) == 0 {
		return nil, newSDPError(ErrorCodeSDPGeneration, "", nil, "нет медиа описаний")
	}
	address := params.Address
	if address == "" {
		address = "0.0.0.0"
	}
	name := params.SessionName
	if name == "" {
		name = "-"
	}
	version := params.Version
	if version == 0 {
		version = uint64(time.Now().UnixNano())
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      version,
			SessionVersion: version,
			NetworkType:    "IN",
			AddressType:    addressType(address),
			UnicastAddress: address,
		},
		SessionName: sdp.SessionName(name),
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: media,
	}
	if params.Address != "" {
		desc.ConnectionInformation = &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType(address),
			Address:     &sdp.Address{Address: address},
		}
	}
	return desc, nil
}

// MediaOf возвращает первое медиа описание указанного типа
func MediaOf(desc *sdp.SessionDescription, kind string) (*sdp.MediaDescription, error) {
	if desc == nil {
		return nil, newSDPError(ErrorCodeSDPParsing, kind, nil, "SDP не может быть nil")
	}
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media == kind {
			return md, nil
		}
	}
	return nil, newSDPError(ErrorCodeSDPParsing, kind, nil, "медиа строка не найдена")
}

// ParseSessionDescription разбирает SDP из текста
func ParseSessionDescription(raw []byte) (*sdp.SessionDescription, error) {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(raw); err != nil {
		return nil, newSDPError(ErrorCodeSDPParsing, "", err, "не удалось разобрать SDP")
	}
	return desc, nil
}

// MarshalSessionDescription сериализует SDP
func MarshalSessionDescription(desc *sdp.SessionDescription) ([]byte, error) {
	raw, err := desc.Marshal()
	if err != nil {
		return nil, newSDPError(ErrorCodeSDPGeneration, "", err, "не удалось сериализовать SDP")
	}
	return raw, nil
}

// describe - краткая форма m-строки для логов
func describe(md *sdp.MediaDescription) string {
	return fmt.Sprintf("m=%s %d %v %v", md.MediaName.Media, md.MediaName.Port.Value, md.MediaName.Protos, md.MediaName.Formats)
}
